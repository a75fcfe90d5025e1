package validators

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/media"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// multipartMemory is how much of a form is buffered in memory before parts
// spill to temp files.
const multipartMemory = 8 << 20

// Form wraps a parsed multipart request. Close releases opened files and any
// temp files the parser created.
type Form struct {
	form   *multipart.Form
	opened []multipart.File
}

// ParseMultipart parses a multipart form bounded by maxBytes.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) (*Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").
				WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return &Form{form: r.MultipartForm}, nil
}

// Value returns the trimmed first value for key.
func (f *Form) Value(key string) string {
	if f == nil || f.form == nil {
		return ""
	}
	values := f.form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// Values returns every non-blank value for key. Comma-separated entries are split.
func (f *Form) Values(key string) []string {
	if f == nil || f.form == nil {
		return nil
	}
	var out []string
	for _, raw := range f.form.Value[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Uploads opens every file sent under key.
func (f *Form) Uploads(key string) ([]media.Upload, error) {
	if f == nil || f.form == nil {
		return nil, nil
	}
	headers := f.form.File[key]
	uploads := make([]media.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable upload").
				WithDetails(map[string]any{"file": header.Filename})
		}
		f.opened = append(f.opened, file)
		uploads = append(uploads, media.Upload{FileName: header.Filename, Body: file})
	}
	return uploads, nil
}

// Upload returns the single file under key, or nil when none was sent.
func (f *Form) Upload(key string) (*media.Upload, error) {
	uploads, err := f.Uploads(key)
	if err != nil || len(uploads) == 0 {
		return nil, err
	}
	return &uploads[0], nil
}

func (f *Form) Close() {
	if f == nil {
		return
	}
	for _, file := range f.opened {
		_ = file.Close()
	}
	f.opened = nil
	if f.form != nil {
		_ = f.form.RemoveAll()
	}
}
