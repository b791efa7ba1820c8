package aggregate

import (
	"strings"
	"testing"
	"time"

	"github.com/memoryforge/mnemo/internal/factstore"
)

func fact(key, value string, start time.Time) factstore.Fact {
	return factstore.Fact{Key: key, Value: value, Source: "session:test", StartTime: start}
}

func TestBuildDigestGroupsByCategoryAndSamples(t *testing.T) {
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	facts := []factstore.Fact{
		fact("user.city", "Lisbon", now),
		fact("user.name", "Ana", now),
		fact("pref.editor", "vim", now),
	}
	d := BuildDigest(facts, now)

	if d.TotalFacts != 3 {
		t.Fatalf("total facts = %d, want 3", d.TotalFacts)
	}
	userCat, ok := d.Categories["user"]
	if !ok || userCat.Count != 2 {
		t.Fatalf("user category = %+v", userCat)
	}
	if len(userCat.Facts) != 2 {
		t.Errorf("expected both user facts sampled (under limit), got %d", len(userCat.Facts))
	}
	if !strings.Contains(d.Summary, "3 facts") {
		t.Errorf("summary = %q, expected total count mentioned", d.Summary)
	}
}

func TestBuildDigestSamplesCapAtLimit(t *testing.T) {
	now := time.Now()
	var facts []factstore.Fact
	for i := 0; i < sampleLimit+5; i++ {
		facts = append(facts, fact("user.field"+string(rune('a'+i)), "v", now))
	}
	d := BuildDigest(facts, now)
	if len(d.Categories["user"].Facts) != sampleLimit {
		t.Errorf("sampled facts = %d, want %d", len(d.Categories["user"].Facts), sampleLimit)
	}
	if d.Categories["user"].Count != sampleLimit+5 {
		t.Errorf("count = %d, want %d", d.Categories["user"].Count, sampleLimit+5)
	}
}

func TestDailyLogFiltersByDateAndRendersSections(t *testing.T) {
	day := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	other := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	facts := []factstore.Fact{
		fact("user.city", "Lisbon", day),
		fact("user.name", "Ana", other),
		fact("pref.editor", "vim", day),
	}
	out := DailyLog(facts, day)

	if !strings.Contains(out, "2026-08-03") {
		t.Error("missing date header")
	}
	if strings.Contains(out, "Ana") {
		t.Error("fact from a different day leaked into daily log")
	}
	if !strings.Contains(out, "Lisbon") || !strings.Contains(out, "vim") {
		t.Errorf("missing expected values in output:\n%s", out)
	}
}

func TestDailyLogFencesLongValues(t *testing.T) {
	day := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	long := strings.Repeat("x", longValueThreshold+10)
	facts := []factstore.Fact{fact("user.blob", long, day)}
	out := DailyLog(facts, day)
	if !strings.Contains(out, "```") {
		t.Errorf("expected fenced block for long value:\n%s", out)
	}
}

func TestWeeklySnapshotProducesPerCategoryFilesAndIndex(t *testing.T) {
	start, _ := isoWeekRange(2026, 32)
	within := start.Add(24 * time.Hour)
	outside := start.Add(-48 * time.Hour)
	facts := []factstore.Fact{
		fact("user.city", "Lisbon", within),
		fact("pref.editor", "vim", outside),
	}
	out := WeeklySnapshot(facts, 2026, 32)

	if _, ok := out["user.md"]; !ok {
		t.Fatalf("expected user.md in output: %+v", out)
	}
	if _, ok := out["pref.md"]; ok {
		t.Error("fact outside the ISO week leaked into a category file")
	}
	if !strings.Contains(out["index.md"], "user.md") {
		t.Errorf("index missing link to user.md:\n%s", out["index.md"])
	}
}

func TestRollingTopicFilesShowsTimelineForMultiValueKeys(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	active := []factstore.Fact{fact("user.city", "Lisbon", now)}
	history := func(key string) ([]factstore.Fact, error) {
		return []factstore.Fact{
			fact(key, "Porto", now.Add(-48*time.Hour)),
			fact(key, "Lisbon", now),
		}, nil
	}
	out, err := RollingTopicFiles(active, history)
	if err != nil {
		t.Fatalf("RollingTopicFiles: %v", err)
	}
	if !strings.Contains(out["user.md"], "Porto") || !strings.Contains(out["user.md"], "Lisbon") {
		t.Errorf("expected timeline with both historical values:\n%s", out["user.md"])
	}
}

func TestRollingTopicFilesSkipsTimelineForSingleValueKeys(t *testing.T) {
	now := time.Now()
	active := []factstore.Fact{fact("user.city", "Lisbon", now)}
	history := func(key string) ([]factstore.Fact, error) {
		return []factstore.Fact{fact(key, "Lisbon", now)}, nil
	}
	out, err := RollingTopicFiles(active, history)
	if err != nil {
		t.Fatalf("RollingTopicFiles: %v", err)
	}
	if strings.Contains(out["user.md"], "| start_time |") {
		t.Error("did not expect a timeline table for a single-value key")
	}
}

func TestIndexFileSortsByCountDescending(t *testing.T) {
	out := IndexFile(map[string]int{"pref": 2, "user": 10, "entity": 5})
	userIdx := strings.Index(out, "user")
	entityIdx := strings.Index(out, "entity")
	prefIdx := strings.Index(out, "pref")
	if !(userIdx < entityIdx && entityIdx < prefIdx) {
		t.Errorf("expected descending order user > entity > pref:\n%s", out)
	}
}

func TestParseISOWeekRoundTrip(t *testing.T) {
	y, w, err := ParseISOWeek("2026-W32")
	if err != nil {
		t.Fatalf("ParseISOWeek: %v", err)
	}
	if y != 2026 || w != 32 {
		t.Errorf("got year=%d week=%d, want 2026/32", y, w)
	}
}
