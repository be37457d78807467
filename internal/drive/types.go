package drive

import (
	"fmt"
	"strings"
)

const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeDocx         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeMarkdown     = "text/markdown"
	MimeMarkdownAlt  = "text/x-markdown"
	MimePlainText    = "text/plain"
	googleAppsPrefix = "application/vnd.google-apps."
)

// Kind classifies a remote item.
type Kind string

const (
	KindFolder     Kind = "folder"
	KindDocument   Kind = "document"
	KindBinaryFile Kind = "binary-file"
)

// KindOf maps a Drive mime type to a Kind.
func KindOf(mimeType string) Kind {
	switch mimeType {
	case MimeFolder:
		return KindFolder
	case MimeGoogleDoc:
		return KindDocument
	default:
		return KindBinaryFile
	}
}

// RemoteItem is one entry of a remote listing. It is rebuilt on every run.
type RemoteItem struct {
	ID           string
	Name         string
	ParentID     string
	Kind         Kind
	ModifiedTime string
	MimeType     string
}

func (r *RemoteItem) IsFolder() bool {
	return r.Kind == KindFolder
}

// ExportFormat is the mime type the bytes of item will have once fetched.
// Native documents are exported as docx; uploaded files keep their type.
func (r *RemoteItem) ExportFormat() string {
	if r.Kind == KindDocument {
		return MimeDocx
	}
	return r.MimeType
}

// IsNativeOther reports Google apps types other than documents (sheets,
// slides, forms). They can't be downloaded as-is.
func (r *RemoteItem) IsNativeOther() bool {
	return r.Kind == KindBinaryFile && strings.HasPrefix(r.MimeType, googleAppsPrefix)
}

func (r *RemoteItem) String() string {
	return fmt.Sprintf("%s (%s, %s)", r.Name, r.ID, r.Kind)
}

// WebURL is the browser link recorded in frontmatter.
func WebURL(id string) string {
	return "https://docs.google.com/document/d/" + id
}

// fileResource is the subset of the Drive v3 file resource we request.
type fileResource struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	ModifiedTime string   `json:"modifiedTime"`
	Parents      []string `json:"parents"`
}

func (f *fileResource) toItem(parentID string) RemoteItem {
	if parentID == "" && len(f.Parents) > 0 {
		parentID = f.Parents[0]
	}
	return RemoteItem{
		ID:           f.ID,
		Name:         f.Name,
		ParentID:     parentID,
		Kind:         KindOf(f.MimeType),
		ModifiedTime: f.ModifiedTime,
		MimeType:     f.MimeType,
	}
}

type fileList struct {
	NextPageToken string         `json:"nextPageToken"`
	Files         []fileResource `json:"files"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}
