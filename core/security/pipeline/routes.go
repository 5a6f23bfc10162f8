package pipeline

import (
	"net/http"
	"net/url"
	"strings"
)

// Operation is the check a request path is subject to.
type Operation string

const (
	OpBypass   Operation = "bypass"
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
	OpDelete   Operation = "delete"
	OpSkipped  Operation = "skipped"
)

// FileRoutes matches file-operation endpoints by path segment:
//
//	POST   {prefix}/upload          upload
//	PUT    {prefix}/{id}            upload (replace)
//	GET    {prefix}/{id}/download   download
//	DELETE {prefix}/{id}            delete
//
// Segments are split on the escaped path, the way the router matches its
// wildcards, so an id containing an encoded slash is still one segment.
// Any other request under the prefix is skipped; everything else bypasses
// the pipeline.
type FileRoutes struct {
	Prefix string
}

// Classify returns the operation for r and, for operations on an existing
// file, the unescaped file id.
func (fr FileRoutes) Classify(r *http.Request) (Operation, string) {
	prefix := strings.Trim(fr.Prefix, "/")
	p := strings.Trim(r.URL.EscapedPath(), "/")
	if prefix == "" {
		return OpBypass, ""
	}
	if p != prefix && !strings.HasPrefix(p, prefix+"/") {
		return OpBypass, ""
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(p, prefix), "/")
	var segments []string
	if rest != "" {
		segments = strings.Split(rest, "/")
	}
	for i, seg := range segments {
		unescaped, err := url.PathUnescape(seg)
		if err != nil || unescaped == "" || unescaped == "." || unescaped == ".." {
			return OpSkipped, ""
		}
		segments[i] = unescaped
	}
	switch {
	case r.Method == http.MethodPost && len(segments) == 1 && segments[0] == "upload":
		return OpUpload, ""
	case r.Method == http.MethodPut && len(segments) == 1:
		return OpUpload, segments[0]
	case r.Method == http.MethodGet && len(segments) == 2 && segments[1] == "download":
		return OpDownload, segments[0]
	case r.Method == http.MethodDelete && len(segments) == 1:
		return OpDelete, segments[0]
	}
	return OpSkipped, ""
}
