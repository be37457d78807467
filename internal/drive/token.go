package drive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/imroc/req/v3"
)

const (
	ScopeDriveReadOnly = "https://www.googleapis.com/auth/drive.readonly"
	jwtBearerGrant     = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	tokenCacheTTL      = 50 * time.Minute
	tokenExpiryLeeway  = time.Minute
)

type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type cachedToken struct {
	value  string
	expiry time.Time
}

// tokenSource exchanges a signed service account assertion for an access
// token and caches it until shortly before it expires.
type tokenSource struct {
	sa     *ServiceAccount
	scope  string
	client *req.Client
	cache  *expirable.LRU[string, cachedToken]
	mu     sync.Mutex
	now    func() time.Time
}

func newTokenSource(sa *ServiceAccount, scope string, client *req.Client) *tokenSource {
	return &tokenSource{
		sa:     sa,
		scope:  scope,
		client: client,
		cache:  expirable.NewLRU[string, cachedToken](4, nil, tokenCacheTTL),
		now:    time.Now,
	}
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tok, ok := t.cache.Get(t.scope); ok && t.now().Before(tok.expiry) {
		return tok.value, nil
	}

	assertion, err := t.assertion()
	if err != nil {
		return "", err
	}

	var (
		result   tokenResponse
		oauthErr oauthError
	)
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": jwtBearerGrant,
			"assertion":  assertion,
		}).
		SetSuccessResult(&result).
		SetErrorResult(&oauthErr).
		Post(t.sa.TokenURI)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if resp.IsErrorState() {
		return "", fmt.Errorf("%w: token exchange %d: %s %s", ErrInvalidCredentials, resp.StatusCode, oauthErr.Error, oauthErr.Description)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("%w: token exchange returned no access token", ErrInvalidCredentials)
	}

	expiresIn := time.Duration(result.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = assertionLifetime
	}
	t.cache.Add(t.scope, cachedToken{
		value:  result.AccessToken,
		expiry: t.now().Add(expiresIn - tokenExpiryLeeway),
	})
	slog.Debug("drive access token acquired", "account", t.sa.ClientEmail, "expires_in", expiresIn)

	return result.AccessToken, nil
}

func (t *tokenSource) assertion() (string, error) {
	now := t.now()
	claims := assertionClaims{
		Scope: t.scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.sa.ClientEmail,
			Audience:  jwt.ClaimStrings{t.sa.TokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if t.sa.PrivateKeyID != "" {
		token.Header["kid"] = t.sa.PrivateKeyID
	}
	signed, err := token.SignedString(t.sa.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
