package drive

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoCredentials      = errors.New("drive: no credentials provided")
	ErrInvalidCredentials = errors.New("drive: invalid credentials")
	ErrNotFound           = errors.New("drive: not found")
	ErrAccessDenied       = errors.New("drive: access denied")
	ErrCannotExport       = errors.New("drive: cannot export file")
	ErrNotExportable      = errors.New("drive: item type cannot be exported")
)

const reasonCannotExport = "cannotExportFile"

// APIError is the error envelope returned by the Drive v3 API.
type APIError struct {
	Body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

func (e *APIError) Reason() string {
	if len(e.Body.Errors) == 0 {
		return ""
	}
	return e.Body.Errors[0].Reason
}

func (e *APIError) Error() string {
	if r := e.Reason(); r != "" {
		return fmt.Sprintf("api error: %d %s (%s)", e.Body.Code, e.Body.Message, r)
	}
	return fmt.Sprintf("api error: %d %s", e.Body.Code, e.Body.Message)
}

// handleAPIError turns a transport error or an error response into a
// wrapped sentinel so callers can branch with errors.Is.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}
	if !resp.IsErrorState() {
		return nil
	}

	apiErr, _ := resp.ErrorResult().(*APIError)
	if apiErr == nil || apiErr.Body.Code == 0 {
		apiErr = &APIError{}
		apiErr.Body.Code = resp.StatusCode
		apiErr.Body.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", operation, ErrNotFound, apiErr)
	case resp.StatusCode == http.StatusForbidden && apiErr.Reason() == reasonCannotExport:
		return fmt.Errorf("%s: %w: %w", operation, ErrCannotExport, apiErr)
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %w", operation, ErrAccessDenied, apiErr)
	default:
		return fmt.Errorf("%s: %w", operation, apiErr)
	}
}

// Hint is a short remediation for common access problems.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "check the ID or share the folder with the service account"
	case errors.Is(err, ErrCannotExport):
		return "the service account needs Contributor access (not just Viewer) to export Google Docs"
	case errors.Is(err, ErrAccessDenied):
		return "share the folder with the service account (Contributor access for Google Docs)"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNoCredentials):
		return "use --credentials-file, --credentials or set GOOGLE_SERVICE_ACCOUNT_JSON"
	default:
		return ""
	}
}
