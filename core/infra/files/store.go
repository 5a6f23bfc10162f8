// Package files stores uploaded file objects together with their ownership
// metadata.
package files

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("file not found")

// Metadata describes a stored file.
type Metadata struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store provides file object storage.
type Store interface {
	// Put stores content under meta.ID, or under a new id when meta.ID is empty.
	// Replacing a file keeps its owner and creation time.
	Put(ctx context.Context, content []byte, meta Metadata) (Metadata, error)
	Get(ctx context.Context, id string) ([]byte, Metadata, error)
	Stat(ctx context.Context, id string) (Metadata, error)
	// List returns the files owned by ownerID, newest first.
	List(ctx context.Context, ownerID string) ([]Metadata, error)
	// Delete removes a file and its ownership entry; ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// Owner returns the owner of a file, or "" when the file does not exist.
func Owner(ctx context.Context, s Store, id string) (string, error) {
	meta, err := s.Stat(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return meta.OwnerID, nil
}
