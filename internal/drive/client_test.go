package drive

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "mirror@project.iam.gserviceaccount.com"

type fakeDrive struct {
	t          *testing.T
	key        *rsa.PrivateKey
	tokenCalls atomic.Int32
	files      map[string]fileResource
	children   map[string][]string
	content    map[string]string
	status     map[string]int
	reason     string
}

func newFakeDrive(t *testing.T) (*fakeDrive, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fd := &fakeDrive{
		t:        t,
		key:      key,
		files:    map[string]fileResource{},
		children: map[string][]string{},
		content:  map[string]string{},
		status:   map[string]int{},
	}
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)
	return fd, srv
}

func (fd *fakeDrive) add(parent string, f fileResource) {
	if parent != "" {
		f.Parents = []string{parent}
		fd.children[parent] = append(fd.children[parent], f.ID)
	}
	fd.files[f.ID] = f
}

func (fd *fakeDrive) credentials(tokenURL string) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(fd.key)
	require.NoError(fd.t, err)
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "project",
		"private_key_id": "kid-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   testAccount,
		"token_uri":      tokenURL,
	})
	require.NoError(fd.t, err)
	return data
}

func (fd *fakeDrive) writeError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s","errors":[{"reason":"%s"}]}}`, code, http.StatusText(code), reason)
}

func (fd *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		fd.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(fd.t, jwtBearerGrant, r.PostForm.Get("grant_type"))
		claims := &assertionClaims{}
		_, err := jwt.ParseWithClaims(r.PostForm.Get("assertion"), claims, func(*jwt.Token) (any, error) {
			return &fd.key.PublicKey, nil
		})
		if err != nil || claims.Issuer != testAccount || claims.Scope != ScopeDriveReadOnly {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"bad assertion"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`)
		return
	}

	if r.Header.Get("Authorization") != "Bearer tok-1" {
		fd.writeError(w, http.StatusUnauthorized, "authError")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/files")
	q := r.URL.Query()
	assert.Equal(fd.t, "true", q.Get("supportsAllDrives"))

	switch {
	case path == "":
		var parent string
		fmt.Sscanf(q.Get("q"), "'%s", &parent)
		parent = strings.TrimSuffix(parent, "'")
		ids := fd.children[parent]

		// two items per page to exercise pagination
		start := 0
		if tok := q.Get("pageToken"); tok != "" {
			fmt.Sscanf(tok, "%d", &start)
		}
		end := min(start+2, len(ids))
		page := fileList{}
		for _, id := range ids[start:end] {
			page.Files = append(page.Files, fd.files[id])
		}
		if end < len(ids) {
			page.NextPageToken = fmt.Sprint(end)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)

	case strings.HasSuffix(path, "/export"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/export")
		if code := fd.status[id]; code != 0 {
			fd.writeError(w, code, fd.reason)
			return
		}
		assert.Equal(fd.t, MimeDocx, q.Get("mimeType"))
		fmt.Fprint(w, fd.content[id])

	default:
		id := strings.TrimPrefix(path, "/")
		if code := fd.status[id]; code != 0 {
			fd.writeError(w, code, fd.reason)
			return
		}
		f, ok := fd.files[id]
		if !ok {
			fd.writeError(w, http.StatusNotFound, "notFound")
			return
		}
		if q.Get("alt") == "media" {
			fmt.Fprint(w, fd.content[id])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f)
	}
}

func newTestClient(t *testing.T) (*fakeDrive, *Client) {
	fd, srv := newFakeDrive(t)
	c, err := New(fd.credentials(srv.URL+"/token"), WithBaseURL(srv.URL), WithRateLimit(0, 1), WithRetries(0))
	require.NoError(t, err)
	return fd, c
}

func TestClient_GetItem(t *testing.T) {
	fd, c := newTestClient(t)
	fd.add("", fileResource{ID: "F1", Name: "Docs", MimeType: MimeFolder, ModifiedTime: "2024-01-01T00:00:00Z"})

	item, err := c.GetItem(context.Background(), "F1")
	require.NoError(t, err)
	assert.Equal(t, "Docs", item.Name)
	assert.Equal(t, KindFolder, item.Kind)
	assert.True(t, item.IsFolder())

	_, err = c.GetItem(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotEmpty(t, Hint(err))
}

func TestClient_ListChildrenPaginates(t *testing.T) {
	fd, c := newTestClient(t)
	fd.add("", fileResource{ID: "F1", Name: "Docs", MimeType: MimeFolder})
	fd.add("F1", fileResource{ID: "D1", Name: "Guide", MimeType: MimeGoogleDoc, ModifiedTime: "t1"})
	fd.add("F1", fileResource{ID: "D2", Name: "FAQ", MimeType: MimeGoogleDoc, ModifiedTime: "t1"})
	fd.add("F1", fileResource{ID: "S1", Name: "Sub", MimeType: MimeFolder})
	fd.add("F1", fileResource{ID: "B1", Name: "notes.md", MimeType: MimeMarkdown})
	fd.add("F1", fileResource{ID: "X1", Name: "Budget", MimeType: "application/vnd.google-apps.spreadsheet"})

	items, err := c.ListChildren(context.Background(), "F1")
	require.NoError(t, err)
	require.Len(t, items, 5)

	ids := []string{}
	for _, it := range items {
		ids = append(ids, it.ID)
		assert.Equal(t, "F1", it.ParentID)
	}
	assert.Equal(t, []string{"D1", "D2", "S1", "B1", "X1"}, ids)
	assert.Equal(t, KindDocument, items[0].Kind)
	assert.Equal(t, KindBinaryFile, items[3].Kind)
	assert.True(t, items[4].IsNativeOther())

	// token is fetched once and cached
	assert.Equal(t, int32(1), fd.tokenCalls.Load())
}

func TestClient_Export(t *testing.T) {
	fd, c := newTestClient(t)
	fd.add("", fileResource{ID: "D1", Name: "Guide", MimeType: MimeGoogleDoc})
	fd.add("", fileResource{ID: "B1", Name: "notes.md", MimeType: MimeMarkdown})
	fd.content["D1"] = "docx-bytes"
	fd.content["B1"] = "# notes"

	doc := RemoteItem{ID: "D1", Kind: KindDocument, MimeType: MimeGoogleDoc}
	data, format, err := c.Export(context.Background(), &doc)
	require.NoError(t, err)
	assert.Equal(t, "docx-bytes", string(data))
	assert.Equal(t, MimeDocx, format)

	upload := RemoteItem{ID: "B1", Kind: KindBinaryFile, MimeType: MimeMarkdown}
	data, format, err = c.Export(context.Background(), &upload)
	require.NoError(t, err)
	assert.Equal(t, "# notes", string(data))
	assert.Equal(t, MimeMarkdown, format)

	folder := RemoteItem{ID: "F1", Kind: KindFolder, MimeType: MimeFolder}
	_, _, err = c.Export(context.Background(), &folder)
	assert.ErrorIs(t, err, ErrNotExportable)
}

func TestClient_ExportErrors(t *testing.T) {
	fd, c := newTestClient(t)
	fd.status["D1"] = http.StatusForbidden
	fd.reason = reasonCannotExport

	doc := RemoteItem{ID: "D1", Kind: KindDocument}
	_, _, err := c.Export(context.Background(), &doc)
	assert.ErrorIs(t, err, ErrCannotExport)
	assert.Contains(t, Hint(err), "Contributor")

	fd.reason = "insufficientFilePermissions"
	_, _, err = c.Export(context.Background(), &doc)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NotErrorIs(t, err, ErrCannotExport)
}

func TestClient_BadAssertionRejected(t *testing.T) {
	_, srv := newFakeDrive(t)

	// signed with a key the server does not know
	stranger := &fakeDrive{t: t, key: mustKey(t)}
	c, err := New(stranger.credentials(srv.URL+"/token"), WithBaseURL(srv.URL), WithRetries(0))
	require.NoError(t, err)

	err = c.Verify(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func mustKey(t *testing.T) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestParseServiceAccount(t *testing.T) {
	fd := &fakeDrive{t: t, key: mustKey(t)}

	sa, err := ParseServiceAccount(fd.credentials(""))
	require.NoError(t, err)
	assert.Equal(t, testAccount, sa.ClientEmail)
	assert.Equal(t, defaultTokenURI, sa.TokenURI)

	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"wrong type", `{"type":"authorized_user","client_email":"a","private_key":"k"}`},
		{"missing email", `{"type":"service_account","private_key":"k"}`},
		{"missing key", `{"type":"service_account","client_email":"a"}`},
		{"bad key", `{"type":"service_account","client_email":"a","private_key":"not pem"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServiceAccount([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}
