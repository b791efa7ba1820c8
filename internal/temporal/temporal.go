// Package temporal implements the Temporal Aligner (spec.md §4.D): it
// turns a batch of raw extracted facts into timed facts with [start_time,
// end_time) intervals, one interval per distinct value within a key.
package temporal

import (
	"sort"
	"time"

	"github.com/memoryforge/mnemo/internal/keygrammar"
)

// RawFact is an extractor output before temporal alignment.
type RawFact struct {
	Key              string
	Value            string
	Source           string
	MessageTimestamp time.Time
}

// TimedFact is a RawFact with its derived interval.
type TimedFact struct {
	Key       string
	Value     string
	Source    string
	StartTime time.Time
	EndTime   *time.Time // nil for the last entry in a key's sequence
}

// Align implements spec.md §4.D's algorithm:
//  1. Normalize keys (alias plurals, replace '/' with '.').
//  2. Group by key.
//  3. Within each group, sort by message_timestamp ascending.
//  4. Dedupe by value: consecutive entries sharing the same canonical value
//     collapse to the earliest.
//  5. Assign start_time = message_timestamp, end_time = the next entry's
//     message_timestamp (or nil for the last).
func Align(raw []RawFact) []TimedFact {
	groups := make(map[string][]RawFact)
	var order []string

	for _, f := range raw {
		key := keygrammar.Normalize(f.Key)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		f.Key = key
		groups[key] = append(groups[key], f)
	}

	var out []TimedFact
	for _, key := range order {
		out = append(out, alignGroup(groups[key])...)
	}
	return out
}

func alignGroup(group []RawFact) []TimedFact {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].MessageTimestamp.Before(group[j].MessageTimestamp)
	})

	deduped := make([]RawFact, 0, len(group))
	for _, f := range group {
		if n := len(deduped); n > 0 && deduped[n-1].Value == f.Value {
			// Consecutive duplicate value: drop all but the earliest,
			// per spec.md §4.D step 4. "Earliest" is already kept since
			// we only ever append the first of a run.
			continue
		}
		deduped = append(deduped, f)
	}

	timed := make([]TimedFact, len(deduped))
	for i, f := range deduped {
		timed[i] = TimedFact{
			Key:       f.Key,
			Value:     f.Value,
			Source:    f.Source,
			StartTime: f.MessageTimestamp,
		}
		if i+1 < len(deduped) {
			end := deduped[i+1].MessageTimestamp
			timed[i].EndTime = &end
		}
	}
	return timed
}
