package snapshot

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type memBackend struct {
	blobs map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{blobs: map[string][]byte{}}
}

func (m *memBackend) Put(_ context.Context, room string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[room] = stored
	return nil
}

func (m *memBackend) Get(_ context.Context, room string) ([]byte, error) {
	data, ok := m.blobs[room]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func TestSaveRejectsEmptyBlob(t *testing.T) {
	svc := NewService(newMemBackend(), 0)
	if err := svc.Save(context.Background(), "r1", nil); !errors.Is(err, ErrEmptySnapshot) {
		t.Fatalf("Save(nil) error = %v, want ErrEmptySnapshot", err)
	}
	if err := svc.Save(context.Background(), "r1", []byte{}); !errors.Is(err, ErrEmptySnapshot) {
		t.Fatalf("Save(empty) error = %v, want ErrEmptySnapshot", err)
	}
}

func TestSaveRejectsOversizedBlob(t *testing.T) {
	svc := NewService(newMemBackend(), 4)
	if err := svc.Save(context.Background(), "r1", []byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save(oversized) error = %v, want ErrTooLarge", err)
	}
	if err := svc.Save(context.Background(), "r1", []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Save(at limit) error = %v", err)
	}
}

func TestRoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemBackend(), 0)

	first := []byte{1, 2, 3}
	if err := svc.Save(ctx, "r1", first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := svc.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("Load() = %v, want %v", got, first)
	}

	second := []byte{4, 5}
	if err := svc.Save(ctx, "r1", second); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	got, err = svc.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load() after overwrite error = %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("Load() after overwrite = %v, want %v", got, second)
	}
}

func TestLoadMissingRoom(t *testing.T) {
	svc := NewService(newMemBackend(), 0)
	if _, err := svc.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemBackend(), 0)

	if err := svc.Save(ctx, "r1", []byte("alpha")); err != nil {
		t.Fatalf("Save(r1) error = %v", err)
	}
	if err := svc.Save(ctx, "r2", []byte("beta")); err != nil {
		t.Fatalf("Save(r2) error = %v", err)
	}

	got, err := svc.Load(ctx, "r1")
	if err != nil || string(got) != "alpha" {
		t.Fatalf("Load(r1) = %q, %v", got, err)
	}
	got, err = svc.Load(ctx, "r2")
	if err != nil || string(got) != "beta" {
		t.Fatalf("Load(r2) = %q, %v", got, err)
	}
}
