package api

import (
	"testing"
)

func TestNewBatchBoundary(t *testing.T) {
	b := NewBatchBoundary()
	if !IsGeneratedBatchBoundary(b) {
		t.Errorf("NewBatchBoundary() = %q, want generated batch boundary", b)
	}
	if !ValidBoundary(b) {
		t.Errorf("NewBatchBoundary() = %q is not a legal multipart boundary", b)
	}
}

func TestNewChangesetBoundary(t *testing.T) {
	b := NewChangesetBoundary()
	if !IsGeneratedChangesetBoundary(b) {
		t.Errorf("NewChangesetBoundary() = %q, want generated changeset boundary", b)
	}
	if IsGeneratedBatchBoundary(b) {
		t.Errorf("changeset boundary %q matched batch pattern", b)
	}
}

func TestIsGeneratedBatchBoundary(t *testing.T) {
	tests := []struct {
		name string
		b    string
		want bool
	}{
		{"valid", "batch_abcdefghijklmnopqrstuvwx", true},
		{"valid mixed case", "batch_AbCdEfGhIjKlMnOpQrStUvWx", true},
		{"wrong prefix", "changeset_abcdefghijklmnopqrstuvwx", false},
		{"too short", "batch_abc", false},
		{"too long", "batch_abcdefghijklmnopqrstuvwxy", false},
		{"special chars", "batch_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGeneratedBatchBoundary(tt.b); got != tt.want {
				t.Errorf("IsGeneratedBatchBoundary(%q) = %v, want %v", tt.b, got, tt.want)
			}
		})
	}
}

func TestValidBoundary(t *testing.T) {
	tests := []struct {
		name string
		b    string
		want bool
	}{
		{"simple", "batch_36522ad7-fc75-4b56-8c71-56071383e77b", true},
		{"inner space", "a b", true},
		{"trailing space", "abc ", false},
		{"empty", "", false},
		{"illegal char", "abc;def", false},
		{"too long", string(make([]byte, 71)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidBoundary(tt.b); got != tt.want {
				t.Errorf("ValidBoundary(%q) = %v, want %v", tt.b, got, tt.want)
			}
		})
	}
}

func TestBoundaryUniqueness(t *testing.T) {
	const count = 1000
	seen := make(map[string]bool, count)

	for i := 0; i < count; i++ {
		b := NewBatchBoundary()
		if seen[b] {
			t.Fatalf("duplicate boundary after %d generations: %s", i, b)
		}
		seen[b] = true
	}
}
