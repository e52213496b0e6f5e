package imageid

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id := New()
	if !strings.HasPrefix(id, "img_") {
		t.Fatalf("expected img_ prefix, got %s", id)
	}
	if !IsValid(id) {
		t.Fatalf("generated id %s did not validate", id)
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewObjectKey(t *testing.T) {
	key := NewObjectKey("user-42")
	if !strings.HasPrefix(key, "images/user-42/") {
		t.Fatalf("key not scoped under owner: %s", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("key missing canonical extension: %s", key)
	}
	if key == NewObjectKey("user-42") {
		t.Fatal("object keys must be fresh per call")
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{New(), true},
		{"img_not-a-ulid", false},
		{"jan_01hq3k9x8b2v5m7n9p1r3t5w7y", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.value); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
