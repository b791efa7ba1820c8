// Package extract implements the Fact Extractor (spec.md §4.C): chunk a
// filtered conversation, call the LLM with a fixed schema prompt, and
// parse a strict JSON array of {key,value} facts.
//
// Grounded on the teacher's pkg/deck/facets.go: the 30,000-char chunk cap
// constant, the brace/bracket-finding strict-parse strategy, and the
// fixed-prompt-string style, generalized from a single session-facet JSON
// object to a streamed array of key/value facts and from one LLM call per
// session to one call per chunk.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memoryforge/mnemo/internal/errs"
	"github.com/memoryforge/mnemo/internal/keygrammar"
	"github.com/memoryforge/mnemo/internal/llmprovider"
)

// maxChunkChars matches spec.md §4.C's ≈30,000 character cap.
const maxChunkChars = 30000

// RawFact is one {key,value} pair straight off the LLM, before validation.
type RawFact struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Fact is a validated, sourced raw fact ready for temporal alignment.
type Fact struct {
	Key              string
	Value            string
	Source           string
	MessageTimestamp time.Time
}

// Extractor chunks text and drives the LLM extraction call.
type Extractor struct {
	call     llmprovider.CallFunc
	deadline time.Duration // ≈45s when called from a hook, longer in the background worker
}

// NewExtractor builds an Extractor. deadline should be ≈45s for
// hook-inline calls or up to 2 minutes for background workers, per
// spec.md §4.C.
func NewExtractor(call llmprovider.CallFunc, deadline time.Duration) *Extractor {
	if deadline <= 0 {
		deadline = 45 * time.Second
	}
	return &Extractor{call: call, deadline: deadline}
}

// Chunk splits text into pieces no larger than maxChunkChars, splitting
// only on paragraph boundaries (blank lines), per spec.md §4.C.
func Chunk(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, p := range paragraphs {
		if current.Len()+len(p)+2 > maxChunkChars {
			flush()
		}
		if len(p) > maxChunkChars {
			// A single paragraph itself exceeds the cap; hard-split it
			// rather than produce an oversized chunk.
			for len(p) > maxChunkChars {
				chunks = append(chunks, p[:maxChunkChars])
				p = p[maxChunkChars:]
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

// Extract runs the full extraction pass over text, calling the LLM once
// per chunk and attaching source/message_timestamp to every resulting
// fact. A per-chunk parse failure yields zero facts for that chunk plus a
// warning in warnings; it never aborts the remaining chunks (spec.md §4.C:
// "the chunk yields zero facts and a warning").
func (e *Extractor) Extract(ctx context.Context, text, sourceID string, messageTimestamp time.Time) ([]Fact, []string, error) {
	chunks := Chunk(text)

	var facts []Fact
	var warnings []string
	source := "session:" + firstSegment(sourceID)

	for i, chunk := range chunks {
		chunkCtx, cancel := context.WithTimeout(ctx, e.deadline)
		response, err := e.call(chunkCtx, buildExtractionPrompt(chunk))
		cancel()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chunk %d: %v", i, &errs.TransientExternal{Op: "extract.Extract", Err: err}))
			continue
		}

		raw, err := parseFactArray(response)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chunk %d: %v", i, &errs.DataMalformed{Op: "extract.Extract", Err: err}))
			continue
		}

		for _, rf := range raw {
			f, ok := validate(rf)
			if !ok {
				continue
			}
			f.Source = source
			f.MessageTimestamp = messageTimestamp
			facts = append(facts, f)
		}
	}

	return facts, warnings, nil
}

func firstSegment(sourceID string) string {
	if i := strings.IndexAny(sourceID, "/\\"); i >= 0 {
		return sourceID[:i]
	}
	return sourceID
}

// buildExtractionPrompt is the fixed system prompt requiring a bare JSON
// array of {key,value} objects, forbidding prose or fences.
func buildExtractionPrompt(chunk string) string {
	return fmt.Sprintf(`You extract durable facts from a conversation excerpt.

Return ONLY a JSON array of objects shaped like {"key": "<dotted.key>", "value": "<text>"}.
Do not include any prose, explanation, or markdown code fences. If there are no
facts worth remembering, return an empty array: [].

Keys must use the form <category>.<segment>(.<segment>)* with category one of:
user, project, task, system, config, preference, location, tool, agent, workflow,
team, environment, model, auth, channel, gateway, plugin, binding, command, meta,
error, correction, event, entity, inferred.

Conversation excerpt:
%s`, chunk)
}

// parseFactArray strips anything before the first '[' and after the last
// ']', then parses strictly, per spec.md §4.C step 1–2.
func parseFactArray(response string) ([]RawFact, error) {
	start := strings.IndexByte(response, '[')
	end := strings.LastIndexByte(response, ']')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var raw []RawFact
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parsing fact array: %w", err)
	}
	return raw, nil
}

// validate implements spec.md §4.C step 3: key is a non-empty string
// matching the category grammar (after plural aliasing); value is
// non-null.
func validate(rf RawFact) (Fact, bool) {
	if rf.Key == "" || rf.Value == nil {
		return Fact{}, false
	}

	key := keygrammar.Normalize(rf.Key)
	if !keygrammar.Validate(key) {
		return Fact{}, false
	}

	var value string
	switch v := rf.Value.(type) {
	case string:
		value = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Fact{}, false
		}
		value = string(encoded)
	}
	if value == "" {
		return Fact{}, false
	}

	return Fact{Key: key, Value: value}, true
}
