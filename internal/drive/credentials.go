package drive

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

const (
	EnvCredentials  = "GOOGLE_SERVICE_ACCOUNT_JSON"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
)

// ServiceAccount holds the fields of a service account key file we use.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`

	key *rsa.PrivateKey
}

// ParseServiceAccount decodes a service account key and its private key.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if sa.Type != "" && sa.Type != "service_account" {
		return nil, fmt.Errorf("%w: type %q is not a service account", ErrInvalidCredentials, sa.Type)
	}
	if sa.ClientEmail == "" {
		return nil, fmt.Errorf("%w: missing client_email", ErrInvalidCredentials)
	}
	if sa.PrivateKey == "" {
		return nil, fmt.Errorf("%w: missing private_key", ErrInvalidCredentials)
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidCredentials, err)
	}
	sa.key = key

	return &sa, nil
}

// CredentialSource names where credentials were loaded from.
type CredentialSource string

const (
	SourceFile CredentialSource = "file"
	SourceFlag CredentialSource = "flag"
	SourceEnv  CredentialSource = "env"
)

// LoadCredentials picks credentials by priority: the file, then the inline
// JSON, then the GOOGLE_SERVICE_ACCOUNT_JSON environment variable.
func LoadCredentials(file, inline string) ([]byte, CredentialSource, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, SourceFile, fmt.Errorf("read credentials file %s: %w", file, err)
		}
		return data, SourceFile, nil
	}
	if inline != "" {
		return []byte(inline), SourceFlag, nil
	}
	if env := os.Getenv(EnvCredentials); env != "" {
		return []byte(env), SourceEnv, nil
	}
	return nil, "", ErrNoCredentials
}
