// Package snapshot stores the latest document-state blob for each room.
// The blob is produced and consumed by the external document-sync layer and
// is opaque here; exactly one record exists per canonical room, overwritten
// wholesale on every save.
package snapshot

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptySnapshot = errors.New("empty snapshot")
	ErrTooLarge      = errors.New("snapshot too large")
	ErrNotFound      = errors.New("snapshot not found")
)

// Backend is a durable latest-blob-per-key store. Put replaces any prior
// blob for the room; Get returns ErrNotFound when none exists.
type Backend interface {
	Put(ctx context.Context, room string, data []byte) error
	Get(ctx context.Context, room string) ([]byte, error)
}

type Service struct {
	backend  Backend
	maxBytes int64
}

func NewService(backend Backend, maxBytes int64) *Service {
	return &Service{backend: backend, maxBytes: maxBytes}
}

// Save validates and upserts the blob for a room. Concurrent saves race
// with last-write-wins semantics; the sync layer's encoding tolerates
// rebuilding from a stale snapshot plus replay.
func (s *Service) Save(ctx context.Context, room string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptySnapshot
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return ErrTooLarge
	}
	if err := s.backend.Put(ctx, room, data); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", room, err)
	}
	return nil
}

// Load returns the most recently saved blob verbatim.
func (s *Service) Load(ctx context.Context, room string) ([]byte, error) {
	data, err := s.backend.Get(ctx, room)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot for %s: %w", room, err)
	}
	return data, nil
}
