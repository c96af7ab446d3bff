package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Put(ctx, "scans/job-1/page-1.png", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "scans/job-1/page-1.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "png-bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryMissingKey(t *testing.T) {
	store := NewMemory()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRejectsEmptyKey(t *testing.T) {
	store := NewMemory()
	if err := store.Put(context.Background(), "", []byte("x"), ""); err == nil {
		t.Fatal("empty key must be rejected")
	}
}

func TestMemoryCopiesBytes(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	body := []byte("original")

	if err := store.Put(ctx, "k", body, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body[0] = 'X'

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("stored bytes aliased the caller's slice: %q", got)
	}
	got[0] = 'Y'
	again, _ := store.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned bytes aliased the stored slice: %q", again)
	}
}
