package audit

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryLogFillsDefaults(t *testing.T) {
	log := NewMemoryLog()
	meta := []byte(`{"badValue":"500"}`)
	if err := log.Log(context.Background(), Entry{Actor: "meter@example.com", Action: ActionReadingRejected, Metadata: meta}); err != nil {
		t.Fatalf("log: %v", err)
	}

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if !strings.HasPrefix(e.ID, "audit-") {
		t.Fatalf("expected generated id, got %s", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Fatalf("expected created_at set")
	}
	if e.PayloadDigest != DigestJSON(meta) || len(e.PayloadDigest) != 64 {
		t.Fatalf("unexpected digest %s", e.PayloadDigest)
	}
}

func TestDigestJSONEmpty(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest")
	}
}

func TestNilRepositoryRejectsLog(t *testing.T) {
	var repo *Repository
	if NewRepository(nil) != nil {
		t.Fatalf("expected nil repository for nil db")
	}
	if err := repo.Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for nil repository")
	}
}
