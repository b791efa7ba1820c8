package temporal

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAlignSimpleUpdate(t *testing.T) {
	raw := []RawFact{
		{Key: "user.city", Value: "Taipei", Source: "session:a", MessageTimestamp: ts("2026-01-01T10:00:00Z")},
		{Key: "user.city", Value: "Hsinchu", Source: "session:b", MessageTimestamp: ts("2026-01-02T09:00:00Z")},
	}

	timed := Align(raw)
	if len(timed) != 2 {
		t.Fatalf("got %d timed facts, want 2", len(timed))
	}
	if timed[0].Value != "Taipei" || timed[0].EndTime == nil || !timed[0].EndTime.Equal(ts("2026-01-02T09:00:00Z")) {
		t.Errorf("unexpected first fact: %+v", timed[0])
	}
	if timed[1].Value != "Hsinchu" || timed[1].EndTime != nil {
		t.Errorf("unexpected second fact: %+v", timed[1])
	}
}

func TestAlignDedupesConsecutiveSameValue(t *testing.T) {
	raw := []RawFact{
		{Key: "user.city", Value: "Taipei", MessageTimestamp: ts("2026-01-01T10:00:00Z")},
		{Key: "user.city", Value: "Taipei", MessageTimestamp: ts("2026-01-01T11:00:00Z")},
		{Key: "user.city", Value: "Hsinchu", MessageTimestamp: ts("2026-01-02T09:00:00Z")},
	}

	timed := Align(raw)
	if len(timed) != 2 {
		t.Fatalf("got %d timed facts, want 2 (dedup should collapse the repeat)", len(timed))
	}
	if !timed[0].StartTime.Equal(ts("2026-01-01T10:00:00Z")) {
		t.Errorf("expected earliest timestamp kept, got %v", timed[0].StartTime)
	}
}

func TestAlignNormalizesKeysAcrossGroups(t *testing.T) {
	raw := []RawFact{
		{Key: "Users/Name", Value: "Alice", MessageTimestamp: ts("2026-01-01T10:00:00Z")},
		{Key: "user.name", Value: "Alice B", MessageTimestamp: ts("2026-01-02T10:00:00Z")},
	}

	timed := Align(raw)
	if len(timed) != 2 {
		t.Fatalf("got %d timed facts, want 2", len(timed))
	}
	for _, f := range timed {
		if f.Key != "user.name" {
			t.Errorf("key = %q, want normalized user.name", f.Key)
		}
	}
}

func TestAlignZeroLengthIntervalOnTimestampCollision(t *testing.T) {
	collide := ts("2026-01-01T10:00:00Z")
	raw := []RawFact{
		{Key: "user.mood", Value: "happy", MessageTimestamp: collide},
		{Key: "user.mood", Value: "tired", MessageTimestamp: collide},
	}

	timed := Align(raw)
	if len(timed) != 2 {
		t.Fatalf("got %d timed facts, want 2", len(timed))
	}
	if !timed[0].EndTime.Equal(collide) || !timed[0].StartTime.Equal(collide) {
		t.Errorf("expected zero-length interval for first entry, got %+v", timed[0])
	}
}
