// Package drive is a small read-only Google Drive v3 client authenticated
// with a service account.
package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"golang.org/x/time/rate"

	"github.com/drivesync/drivesync/internal/version"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultRateLimit = 10 // requests per second
	pageSize         = 100

	itemFields = "id,name,mimeType,modifiedTime,parents"
)

type options struct {
	baseURL   string
	rateLimit rate.Limit
	burst     int
	retries   int
	timeout   time.Duration
}

// Option configures a Client.
type Option func(*options)

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithRateLimit bounds the request rate; 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.rateLimit = rate.Inf
		} else {
			o.rateLimit = rate.Limit(perSecond)
		}
		o.burst = burst
	}
}

func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Client lists and fetches Drive items. It is safe for concurrent use.
type Client struct {
	http    *req.Client
	tokens  *tokenSource
	limiter *rate.Limiter
	account string
}

// New builds a client from a service account key.
func New(credentials []byte, opts ...Option) (*Client, error) {
	sa, err := ParseServiceAccount(credentials)
	if err != nil {
		return nil, err
	}

	o := &options{
		baseURL:   DefaultBaseURL,
		rateLimit: DefaultRateLimit,
		burst:     DefaultRateLimit,
		retries:   3,
		timeout:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.burst < 1 {
		o.burst = 1
	}

	httpClient := req.C().
		SetBaseURL(o.baseURL).
		SetTimeout(o.timeout).
		SetUserAgent(version.UserAgent()).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(o.retries).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 8*time.Second).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		})

	return &Client{
		http:    httpClient,
		tokens:  newTokenSource(sa, ScopeDriveReadOnly, httpClient),
		limiter: rate.NewLimiter(o.rateLimit, o.burst),
		account: sa.ClientEmail,
	}, nil
}

// Account is the service account email, useful for sharing hints.
func (c *Client) Account() string {
	return c.account
}

// Verify checks that the credentials can be exchanged for a token.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *Client) request(ctx context.Context) (*req.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().
		SetContext(ctx).
		SetBearerAuthToken(token).
		SetQueryParam("supportsAllDrives", "true"), nil
}

// GetItem fetches the metadata of one item.
func (c *Client) GetItem(ctx context.Context, id string) (*RemoteItem, error) {
	r, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var file fileResource
	resp, err := r.
		SetQueryParam("fields", itemFields).
		SetSuccessResult(&file).
		Get("/files/" + url.PathEscape(id))
	if err := handleAPIError(resp, err, "get item "+id); err != nil {
		return nil, err
	}

	item := file.toItem("")
	return &item, nil
}

// ListChildren returns every non-trashed child of folderID, following
// pagination until the listing is complete.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]RemoteItem, error) {
	var (
		items     []RemoteItem
		pageToken string
	)

	for {
		r, err := c.request(ctx)
		if err != nil {
			return nil, err
		}

		var page fileList
		r.SetQueryParams(map[string]string{
			"q":                         fmt.Sprintf("'%s' in parents and trashed=false", folderID),
			"pageSize":                  fmt.Sprint(pageSize),
			"fields":                    "nextPageToken,files(" + itemFields + ")",
			"includeItemsFromAllDrives": "true",
			"orderBy":                   "name",
		})
		if pageToken != "" {
			r.SetQueryParam("pageToken", pageToken)
		}

		resp, err := r.SetSuccessResult(&page).Get("/files")
		if err := handleAPIError(resp, err, "list children of "+folderID); err != nil {
			return nil, err
		}

		for i := range page.Files {
			items = append(items, page.Files[i].toItem(folderID))
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	slog.Debug("drive list", "folder", folderID, "items", len(items))
	return items, nil
}

// Export returns the bytes of item and their mime type. Native documents
// are exported as docx, uploaded files are downloaded unchanged.
func (c *Client) Export(ctx context.Context, item *RemoteItem) ([]byte, string, error) {
	if item.Kind == KindFolder || item.IsNativeOther() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotExportable, item)
	}

	r, err := c.request(ctx)
	if err != nil {
		return nil, "", err
	}

	var resp *req.Response
	if item.Kind == KindDocument {
		resp, err = r.SetQueryParam("mimeType", MimeDocx).
			Get("/files/" + url.PathEscape(item.ID) + "/export")
	} else {
		resp, err = r.SetQueryParam("alt", "media").
			Get("/files/" + url.PathEscape(item.ID))
	}
	if err := handleAPIError(resp, err, "export "+item.ID); err != nil {
		return nil, "", err
	}

	data, err := resp.ToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("read export body of %s: %w", item.ID, err)
	}
	return data, item.ExportFormat(), nil
}
