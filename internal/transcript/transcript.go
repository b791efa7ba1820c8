// Package transcript decodes host-specific conversation transcripts into
// the normalized message schema the rest of the pipeline consumes.
//
// Grounded on the teacher's pkg/backfill/transcript.go JSONL-scanning
// pattern (bufio.Scanner with an enlarged buffer, dedup-by-id-keep-last,
// skip-malformed-lines), generalized from Claude-Code-specific usage
// entries to the host-agnostic normalized schema of spec.md §6.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/memoryforge/mnemo/internal/errs"
)

// Message is one normalized conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// rawLine is the wire shape adapters must produce, per spec.md §6:
//
//	{"type":"message","message":{"role":"user|assistant","content":"<text>"},"timestamp":"<ISO8601>"}
type rawLine struct {
	Type      string `json:"type"`
	Message   *rawMessage `json:"message"`
	Timestamp string `json:"timestamp"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// maxLineBytes bounds a single JSONL line; transcripts with larger single
// lines are almost certainly malformed rather than legitimately huge.
const maxLineBytes = 10 * 1024 * 1024

// Parse decodes a normalized-schema JSONL transcript file into an ordered
// sequence of messages. Lines with empty text or non-text content are
// dropped silently (per spec.md §4.A); lines that fail to parse as JSON
// are skipped with a count, not a hard failure. If the file itself cannot
// be opened or every line is malformed, Parse returns a *errs.DataMalformed
// wrapping the underlying cause ("MalformedTranscript" in spec.md's
// vocabulary).
func Parse(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.DataMalformed{Op: "transcript.Parse", Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var messages []Message
	lineNo := 0
	malformed := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			malformed++
			continue
		}
		if raw.Type != "" && raw.Type != "message" {
			continue
		}
		if raw.Message == nil {
			malformed++
			continue
		}

		text := extractText(raw.Message.Content)
		if text == "" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			malformed++
			continue
		}

		role := raw.Message.Role
		if role != "user" && role != "assistant" {
			continue
		}

		messages = append(messages, Message{Role: role, Text: text, Timestamp: ts})
	}

	if err := scanner.Err(); err != nil {
		return nil, &errs.DataMalformed{Op: "transcript.Parse", Err: fmt.Errorf("scanning %s: %w", path, err)}
	}

	if lineNo > 0 && len(messages) == 0 && malformed == lineNo {
		return nil, &errs.DataMalformed{Op: "transcript.Parse", Err: fmt.Errorf("%s: all %d lines malformed", path, lineNo)}
	}

	return messages, nil
}

// ToolEvent is one tool invocation and its result, used by the Learning
// Extractor (spec.md §4.J) to detect error→recovery cases and usage
// patterns. Adapters emit these as content blocks alongside ordinary text
// blocks; ParseToolEvents scans the same JSONL file Parse does but keeps
// the tool-call/tool-result blocks Parse itself discards.
type ToolEvent struct {
	Tool      string
	Input     string
	IsError   bool
	Result    string
	Timestamp time.Time
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ParseToolEvents extracts tool_use/tool_result content blocks from the
// same normalized-schema JSONL transcript Parse reads, in file order.
// Malformed lines are skipped, matching Parse's leniency; ParseToolEvents
// never fails on a per-line basis, only if the file cannot be opened.
func ParseToolEvents(path string) ([]ToolEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.DataMalformed{Op: "transcript.ParseToolEvents", Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var events []ToolEvent
	var lastCall ToolEvent // most recent tool_use block; adapters pair it with the next tool_result

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil || raw.Message == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			continue
		}

		var blocks []rawContentBlock
		if err := json.Unmarshal(raw.Message.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			switch b.Type {
			case "tool_use":
				lastCall = ToolEvent{Tool: b.Name, Input: string(b.Input), Timestamp: ts}
			case "tool_result":
				var resultText string
				_ = json.Unmarshal(b.Content, &resultText)
				events = append(events, ToolEvent{
					Tool:      lastCall.Tool,
					Input:     lastCall.Input,
					IsError:   b.IsError,
					Result:    resultText,
					Timestamp: ts,
				})
			}
		}
	}
	return events, nil
}

// extractText normalizes the "content" field, which adapters may emit as
// either a bare JSON string or a structured content-block array. Non-text
// parts (images, tool-call blocks) are dropped; only concatenated text
// parts are folded into the result, per spec.md §4.A.
func extractText(content json.RawMessage) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}

	out := ""
	for _, b := range blocks {
		if b.Type == "" || b.Type == "text" {
			out += b.Text
		}
	}
	return out
}
