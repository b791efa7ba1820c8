// Package aggregate implements the Aggregator (spec.md §4.I): it reads
// only the active fact set and produces the digest, daily log, weekly
// snapshot, and rolling per-category files. Every output here is fully
// regenerable from the fact store; nothing written by this package is
// ever read back by the pipeline.
//
// Grounded on pkg/skill/writer.go's MkdirAll-then-WriteFile persistence
// style and markdown-with-frontmatter rendering discipline, adapted from
// one file per skill to one file per category/date/week.
package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/keygrammar"
)

const sampleLimit = 3
const longValueThreshold = 200

// Digest is the `{generated_at, total_facts, summary, categories}` shape
// of spec.md §4.I.
type Digest struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	TotalFacts  int                        `json:"total_facts"`
	Summary     string                     `json:"summary"`
	Categories  map[string]CategoryDigest  `json:"categories"`
}

// CategoryDigest is one category's entry within Digest.
type CategoryDigest struct {
	Count int                    `json:"count"`
	Facts map[string]string      `json:"facts"` // key -> value, sampled up to sampleLimit
}

// BuildDigest groups facts by their first key segment, per spec.md §4.I.
func BuildDigest(facts []factstore.Fact, now time.Time) Digest {
	categories := make(map[string]CategoryDigest)
	for _, f := range facts {
		cat := keygrammar.Category(f.Key)
		cd, ok := categories[cat]
		if !ok {
			cd = CategoryDigest{Facts: make(map[string]string)}
		}
		cd.Count++
		if len(cd.Facts) < sampleLimit {
			cd.Facts[f.Key] = truncateValue(f.Value)
		}
		categories[cat] = cd
	}

	return Digest{
		GeneratedAt: now,
		TotalFacts:  len(facts),
		Summary:     buildSummaryLine(now, len(facts), categories),
		Categories:  categories,
	}
}

// buildSummaryLine renders spec.md §4.L's `summary` op text: date, total,
// top categories.
func buildSummaryLine(now time.Time, total int, categories map[string]CategoryDigest) string {
	type catCount struct {
		name  string
		count int
	}
	var counts []catCount
	for name, cd := range categories {
		counts = append(counts, catCount{name, cd.Count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	var top []string
	for i, c := range counts {
		if i >= 3 {
			break
		}
		top = append(top, fmt.Sprintf("%s:%d", c.name, c.count))
	}

	return fmt.Sprintf("%s — %d facts (%s)", now.Format("2006-01-02"), total, strings.Join(top, ", "))
}

// RenderDigestJSON marshals a Digest the way a caller would persist or
// return it over the wire.
func RenderDigestJSON(d Digest) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func truncateValue(v string) string {
	if len(v) <= longValueThreshold {
		return v
	}
	return v[:longValueThreshold] + "…"
}

func isLongOrJSON(v string) bool {
	if len(v) > longValueThreshold {
		return true
	}
	trimmed := strings.TrimSpace(v)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// segment returns the i-th (0-indexed) dotted segment of key, or "" if
// key has fewer segments.
func segment(key string, i int) string {
	parts := strings.Split(key, ".")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// DailyLog renders every fact whose StartTime falls on date as markdown,
// grouped by top-level category then sub-grouped by the second key
// segment, per spec.md §4.I.
func DailyLog(facts []factstore.Fact, date time.Time) string {
	y, m, d := date.Date()
	var matched []factstore.Fact
	for _, f := range facts {
		fy, fm, fd := f.StartTime.Date()
		if fy == y && fm == m && fd == d {
			matched = append(matched, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Log — %s\n\n", date.Format("2006-01-02"))
	renderGroupedFacts(&b, matched)
	return b.String()
}

// renderGroupedFacts groups facts by category then by second segment and
// writes them as markdown sections, matching spec.md §4.I's "short values
// inline, long/JSON values as fenced blocks" rule.
func renderGroupedFacts(b *strings.Builder, facts []factstore.Fact) {
	byCategory := make(map[string]map[string][]factstore.Fact)
	for _, f := range facts {
		cat := keygrammar.Category(f.Key)
		sub := segment(f.Key, 1)
		if byCategory[cat] == nil {
			byCategory[cat] = make(map[string][]factstore.Fact)
		}
		byCategory[cat][sub] = append(byCategory[cat][sub], f)
	}

	var cats []string
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		fmt.Fprintf(b, "## %s\n\n", cat)
		var subs []string
		for s := range byCategory[cat] {
			subs = append(subs, s)
		}
		sort.Strings(subs)
		for _, sub := range subs {
			fmt.Fprintf(b, "### %s\n\n", sub)
			for _, f := range byCategory[cat][sub] {
				writeFactLine(b, f)
			}
			b.WriteString("\n")
		}
	}
}

func writeFactLine(b *strings.Builder, f factstore.Fact) {
	if isLongOrJSON(f.Value) {
		fmt.Fprintf(b, "- `%s`:\n\n```\n%s\n```\n\n", f.Key, f.Value)
		return
	}
	fmt.Fprintf(b, "- `%s`: %s\n", f.Key, f.Value)
}

// WeeklySnapshot renders one markdown document per category for ISO week
// (isoYear, isoWeek), filtered to that week's date range, plus an index.
// The returned map is keyed by filename.
func WeeklySnapshot(facts []factstore.Fact, isoYear, isoWeek int) map[string]string {
	start, end := isoWeekRange(isoYear, isoWeek)

	var matched []factstore.Fact
	for _, f := range facts {
		if !f.StartTime.Before(start) && f.StartTime.Before(end) {
			matched = append(matched, f)
		}
	}

	byCategory := make(map[string][]factstore.Fact)
	for _, f := range matched {
		cat := keygrammar.Category(f.Key)
		byCategory[cat] = append(byCategory[cat], f)
	}

	out := make(map[string]string)
	var index strings.Builder
	fmt.Fprintf(&index, "# Weekly Snapshot — %d-W%02d\n\n", isoYear, isoWeek)

	var cats []string
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return len(byCategory[cats[i]]) > len(byCategory[cats[j]]) })

	for _, cat := range cats {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s — week %d-W%02d\n\n", cat, isoYear, isoWeek)
		renderGroupedFacts(&b, byCategory[cat])
		filename := cat + ".md"
		out[filename] = b.String()
		fmt.Fprintf(&index, "- [%s](%s) (%d facts)\n", cat, filename, len(byCategory[cat]))
	}
	out["index.md"] = index.String()
	return out
}

func isoWeekRange(year, week int) (time.Time, time.Time) {
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	firstMonday := jan4.AddDate(0, 0, -(weekday - 1))
	start := firstMonday.AddDate(0, 0, (week-1)*7)
	end := start.AddDate(0, 0, 7)
	return start, end
}

// RollingTopicFiles aggregates all active facts per category, grouping by
// the second key segment then the third. When a key has multiple
// historical values, the latest plus a truncated timeline table is
// presented, per spec.md §4.I.
func RollingTopicFiles(active []factstore.Fact, history func(key string) ([]factstore.Fact, error)) (map[string]string, error) {
	byCategory := make(map[string][]factstore.Fact)
	for _, f := range active {
		cat := keygrammar.Category(f.Key)
		byCategory[cat] = append(byCategory[cat], f)
	}

	out := make(map[string]string)
	for cat, facts := range byCategory {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", cat)

		bySub := make(map[string][]factstore.Fact)
		for _, f := range facts {
			bySub[segment(f.Key, 1)] = append(bySub[segment(f.Key, 1)], f)
		}
		var subs []string
		for s := range bySub {
			subs = append(subs, s)
		}
		sort.Strings(subs)

		for _, sub := range subs {
			fmt.Fprintf(&b, "## %s\n\n", sub)
			for _, f := range bySub[sub] {
				hist, err := history(f.Key)
				if err != nil {
					return nil, err
				}
				writeTopicEntry(&b, f, hist)
			}
		}
		out[cat+".md"] = b.String()
	}
	return out, nil
}

// timelineLimit caps a rolling topic entry's timeline table to the most
// recent rows of the key's history.
const timelineLimit = 5

func writeTopicEntry(b *strings.Builder, f factstore.Fact, hist []factstore.Fact) {
	fmt.Fprintf(b, "### %s\n\n", f.Key)
	fmt.Fprintf(b, "Latest: %s\n\n", truncateValue(f.Value))
	if len(hist) <= 1 {
		return
	}
	rows := hist
	if len(rows) > timelineLimit {
		rows = rows[len(rows)-timelineLimit:]
	}
	b.WriteString("| start_time | value |\n|---|---|\n")
	for _, h := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", h.StartTime.Format(time.RFC3339), truncateValue(h.Value))
	}
	b.WriteString("\n")
}

// IndexFile renders counts and links sorted by count descending, per
// spec.md §4.I.
func IndexFile(counts map[string]int) string {
	type entry struct {
		name  string
		count int
	}
	var entries []entry
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	var b strings.Builder
	b.WriteString("# Index\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s](%s.md) (%d)\n", e.name, e.name, e.count)
	}
	return b.String()
}

// Writer persists aggregate outputs to disk, creating directories as
// needed (pkg/skill/writer.go's MkdirAll-then-WriteFile style).
type Writer struct {
	Dir string
}

// WriteAll writes a filename->content map under w.Dir.
func (w *Writer) WriteAll(files map[string]string) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("aggregate: creating %s: %w", w.Dir, err)
	}
	for name, content := range files {
		path := filepath.Join(w.Dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return fmt.Errorf("aggregate: writing %s: %w", path, err)
		}
	}
	return nil
}

// WriteOne writes a single named file under w.Dir.
func (w *Writer) WriteOne(name, content string) error {
	return w.WriteAll(map[string]string{name: content})
}

// ISOWeekOf is a small helper exposed for callers that need to compute
// "this week" without importing time.Time.ISOWeek semantics directly.
func ISOWeekOf(t time.Time) (year, week int) {
	return t.ISOWeek()
}

// ParseISOWeek parses a "YYYY-Www" label into year/week integers.
func ParseISOWeek(label string) (year, week int, err error) {
	parts := strings.SplitN(label, "-W", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("aggregate: invalid ISO week label %q", label)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate: invalid year in %q: %w", label, err)
	}
	week, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate: invalid week in %q: %w", label, err)
	}
	return year, week, nil
}
