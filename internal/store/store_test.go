package store

import (
	"context"
	"testing"
	"time"
)

func TestNewSupportsNoop(t *testing.T) {
	s, err := New(context.Background(), "none", "")
	if err != nil {
		t.Fatalf("New none: %v", err)
	}
	if err := s.SaveBatch(context.Background(), nil, nil, time.Now()); err != nil {
		t.Fatalf("noop SaveBatch: %v", err)
	}
	s.Close()
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported store type")
	}
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), "postgres", "  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
