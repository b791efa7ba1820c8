// Package noise implements the pure, stateless classifier that rejects
// low-information conversation turns (and, at a second granularity,
// low-information extracted facts) before they reach the LLM or the store.
//
// New package — no direct teacher analog exists (the teacher's domain has
// no extraction noise filter) — but it follows the teacher's
// configuration-over-constant style (pkg/config/defaults.go: named const
// defaults, overridable via a Config struct) so thresholds remain testable
// in isolation per spec.md §4.B.
package noise

import (
	"regexp"
	"strings"
)

// Config holds the tunable thresholds and pattern sets. The zero value is
// invalid; use DefaultConfig.
type Config struct {
	MinLength int
	MaxLength int

	DenialPatterns      []*regexp.Regexp
	MetaQuestionPattern []*regexp.Regexp
	BoilerplatePatterns []*regexp.Regexp
}

// DefaultConfig returns the reproducible defaults named in spec.md §4.B.
func DefaultConfig() Config {
	return Config{
		MinLength: 10,
		MaxLength: 5000,
		DenialPatterns: compileAll(
			`(?i)i don'?t have (any )?(data|information|record|memory)`,
			`(?i)i don'?t recall`,
			`(?i)i have no (memory|record) of`,
			`(?i)我不记得`,
			`(?i)没有相关(记录|数据|信息)`,
		),
		MetaQuestionPattern: compileAll(
			`(?i)^do you remember`,
			`(?i)^can you recall`,
			`(?i)你还记得`,
			`(?i)还记不记得`,
		),
		BoilerplatePatterns: compileAll(
			`(?i)^(hi|hello|hey|好的|你好|谢谢|thanks|thank you)[.!,\s]*$`,
			`(?i)^(ok|okay|sure|got it|understood)[.!,\s]*$`,
			`^(好的|收到|明白了?)[。！，\s]*$`,
		),
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var (
	fencedCodeBlock = regexp.MustCompile(`^\s*` + "```")
	logPrefixLine   = regexp.MustCompile(`^\s*\[\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	markdownHeader  = regexp.MustCompile(`^\s*#{1,6}\s`)
	markdownListTop = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s`)
)

// IsNoise returns true when text carries no information worth extracting
// facts from, per the rules of spec.md §4.B. It is used at two
// granularities: per-message (before chunking/extraction) and per-fact
// (post-filtering extractor output) — callers pick the granularity by
// calling IsNoise with either a message's text or a fact's rendered
// "key: value" text.
func IsNoise(cfg Config, text string) bool {
	trimmed := strings.TrimSpace(text)

	if len(trimmed) < cfg.MinLength || len(trimmed) > cfg.MaxLength {
		return true
	}

	for _, re := range cfg.DenialPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	for _, re := range cfg.MetaQuestionPattern {
		if re.MatchString(trimmed) {
			return true
		}
	}
	for _, re := range cfg.BoilerplatePatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}

	if isEntirelyFencedCodeBlock(trimmed) {
		return true
	}
	if isPureJSON(trimmed) {
		return true
	}
	if logPrefixLine.MatchString(trimmed) {
		return true
	}
	if markdownHeader.MatchString(trimmed) || markdownListTop.MatchString(trimmed) {
		return true
	}

	return false
}

func isEntirelyFencedCodeBlock(text string) bool {
	if !fencedCodeBlock.MatchString(text) {
		return false
	}
	return strings.Count(text, "```") >= 2 && strings.HasSuffix(strings.TrimSpace(text), "```")
}

func isPureJSON(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 2 {
		return false
	}
	first, last := t[0], t[len(t)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}
