package ids

import (
	"testing"
	"time"
)

func TestNewULID_ValidAndTimestamped(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	id, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if !Valid(id) {
		t.Fatalf("expected valid ulid, got %q", id)
	}
	ts, ok := Time(id)
	if !ok || !ts.Equal(now) {
		t.Fatalf("embedded time=%v ok=%v", ts, ok)
	}
}

func TestValid_Rejects(t *testing.T) {
	for _, s := range []string{"", "abc", "01ARZ3NDEKTSV4RRFFQ69G5FA!", "not-a-ulid-not-a-ulid-xxxx"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
