package gateway

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/cutty/cutty/core/infra/files"
	"github.com/cutty/cutty/core/security/access"
	"github.com/cutty/cutty/core/security/identity"
	"github.com/cutty/cutty/core/security/upload"
)

// File handlers run after the pipeline has validated uploads and checked
// access. They repeat the ownership check against the stored metadata.

func (s *server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireAuthenticated(w, r)
	if !ok {
		return
	}
	content, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	meta, err := s.files.Put(r.Context(), content, files.Metadata{
		OwnerID:     id.UserID,
		Name:        upload.FileName(r),
		ContentType: contentType(r),
	})
	if err != nil {
		s.writeInternalError(w, "Failed to store file", err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *server) handleReplaceFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireAuthenticated(w, r)
	if !ok {
		return
	}
	fileID := r.PathValue("id")
	existing, err := s.files.Stat(r.Context(), fileID)
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.writeInternalError(w, "Failed to load file", err)
		return
	}
	if !s.authorizeFile(w, r, id, access.ActionWrite, existing) {
		return
	}
	content, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	name := upload.FileName(r)
	if name == "" {
		name = existing.Name
	}
	meta, err := s.files.Put(r.Context(), content, files.Metadata{
		ID:          fileID,
		Name:        name,
		ContentType: contentType(r),
	})
	if err != nil {
		s.writeInternalError(w, "Failed to store file", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	content, meta, err := s.files.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.writeInternalError(w, "Failed to load file", err)
		return
	}
	if !s.authorizeFile(w, r, caller(r), access.ActionRead, meta) {
		return
	}
	ct := meta.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireAuthenticated(w, r)
	if !ok {
		return
	}
	fileID := r.PathValue("id")
	existing, err := s.files.Stat(r.Context(), fileID)
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.writeInternalError(w, "Failed to load file", err)
		return
	}
	if !s.authorizeFile(w, r, id, access.ActionDelete, existing) {
		return
	}
	err = s.files.Delete(r.Context(), fileID)
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.writeInternalError(w, "Failed to delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) authorizeFile(w http.ResponseWriter, r *http.Request, id identity.Identity, action access.Action, meta files.Metadata) bool {
	allowed, err := s.authz.Can(r.Context(), id, action, access.Resource{ID: meta.ID, OwnerID: meta.OwnerID})
	if err != nil {
		s.writeInternalError(w, "Access check failed", err)
		return false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

// handleListFiles lists the caller's files. Admins may list another owner's
// files with ?owner=.
func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireAuthenticated(w, r)
	if !ok {
		return
	}
	owner := id.UserID
	if requested := strings.TrimSpace(r.URL.Query().Get("owner")); requested != "" && requested != owner {
		if !id.IsAdmin() {
			writeError(w, http.StatusForbidden, "Access denied")
			return
		}
		owner = requested
	}
	list, err := s.files.List(r.Context(), owner)
	if err != nil {
		s.writeInternalError(w, "Failed to list files", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (s *server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	cfg, err := s.policies.FileUpload(r.Context())
	if err != nil {
		s.writePolicyError(w, err)
		return nil, false
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.MaxFileSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return nil, false
	}
	return content, true
}

func contentType(r *http.Request) string {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		return mediaType
	}
	return ""
}
