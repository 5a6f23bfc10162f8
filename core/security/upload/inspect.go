package upload

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
)

// PeekSize is how much of the body is read for detection and scanning.
const PeekSize = 3 << 10

// Inspect collects upload metadata from r and peeks the start of its body.
// r.Body is replaced so that downstream handlers still read the full body.
func Inspect(r *http.Request) (FileMetadata, error) {
	meta := FileMetadata{
		Name:         FileName(r),
		Size:         r.ContentLength,
		DeclaredType: r.Header.Get("Content-Type"),
	}
	if meta.Size < 0 {
		meta.Size = -1
	}
	if r.Body == nil || r.Body == http.NoBody {
		return meta, nil
	}
	head := make([]byte, PeekSize)
	n, err := io.ReadFull(r.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return meta, err
	}
	meta.Head = head[:n]
	r.Body = &peekedBody{Reader: io.MultiReader(bytes.NewReader(meta.Head), r.Body), Closer: r.Body}
	return meta, nil
}

type peekedBody struct {
	io.Reader
	io.Closer
}

// FileName returns the base name of the uploaded file from the filename query
// parameter or the X-File-Name header.
func FileName(r *http.Request) string {
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = r.Header.Get("X-File-Name")
	}
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	return path.Base(name)
}
