package profile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "profile_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get(context.Background(), "me", "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string for missing key", val)
	}
}

func TestSetUpsertAndKeyFolding(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "me", "Sleep Routine", "23:00-07:00", t0); err != nil {
		t.Fatalf("Set(v1) error: %v", err)
	}
	if err := s.Set(ctx, "me", "sleep_routine", "22:30-06:30", t0.Add(time.Hour)); err != nil {
		t.Fatalf("Set(v2) error: %v", err)
	}

	val, err := s.Get(ctx, "me", "SLEEP  routine")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "22:30-06:30" {
		t.Errorf("Get() = %q, want %q after upsert", val, "22:30-06:30")
	}

	all, _ := s.All(ctx, "me")
	if len(all) != 1 || !all[0].UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("All() = %+v", all)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Set(ctx, "me", "allergies", "penicillin", t0)
	if err := s.Delete(ctx, "me", "allergies"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if val, _ := s.Get(ctx, "me", "allergies"); val != "" {
		t.Errorf("Get() = %q after delete, want empty", val)
	}
	// Deleting a non-existent key should not error.
	if err := s.Delete(ctx, "me", "nope"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
}

func TestUserIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Set(ctx, "alice", "medications", "magnesium", t0)
	s.Set(ctx, "bob", "medications", "none", t0)

	all, err := s.All(ctx, "alice")
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(all) != 1 || all[0].Value != "magnesium" {
		t.Errorf("All(alice) = %+v", all)
	}

	empty, err := s.All(ctx, "carol")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("All(carol) = %v, %v; want empty non-nil slice", empty, err)
	}
}

func TestNewStore_InvalidPath(t *testing.T) {
	if _, err := NewStore("/nonexistent/path/db.sqlite"); err == nil {
		t.Error("NewStore() should fail for invalid path")
	}
}

func TestStore_PersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist_test.db")
	ctx := context.Background()

	s1, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(1): %v", err)
	}
	if err := s1.Set(ctx, "me", "timezone", "Europe/Berlin", t0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	s1.Close()

	s2, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(2): %v", err)
	}
	defer s2.Close()

	if val, _ := s2.Get(ctx, "me", "timezone"); val != "Europe/Berlin" {
		t.Errorf("Get() = %q after reopen, want Europe/Berlin", val)
	}
}

func TestHandler(t *testing.T) {
	s := testStore(t)
	h := NewHandler(s, "me", slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return t0 }
	ctx := context.Background()

	tests := []struct {
		message string
		want    string
	}{
		{"show my profile", "Your profile is empty."},
		{"Update my medications to sumatriptan as needed.", `Updated your medications to "sumatriptan as needed".`},
		{"set my Sleep Routine to 23:00-07:00", `Updated your sleep routine to "23:00-07:00".`},
		{"show my profile", "- **medications**: sumatriptan as needed\n- **sleep routine**: 23:00-07:00"},
		{"clear my medications", "Cleared your medications."},
		{"delete my profile", "I won't clear the whole profile"},
		{"hmm", "I can keep your health profile up to date."},
	}
	for _, tt := range tests {
		got, err := h.Handle(ctx, nil, tt.message)
		if err != nil {
			t.Fatalf("Handle(%q): %v", tt.message, err)
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("Handle(%q) = %q, want it to contain %q", tt.message, got, tt.want)
		}
	}

	if val, _ := s.Get(ctx, "me", "medications"); val != "" {
		t.Errorf("medications = %q after clear", val)
	}
}
