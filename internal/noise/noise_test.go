package noise

import "testing"

func TestIsNoise(t *testing.T) {
	cfg := DefaultConfig()

	noisy := []string{
		"hi",
		"I don't have any data on that.",
		"Do you remember what I said?",
		"thanks",
		"```\nfmt.Println(\"hi\")\n```",
		`{"ok": true}`,
		"[2026-01-01T10:00:00] starting up",
		"## Section Header",
		"- a list item",
		"",
	}
	for _, s := range noisy {
		if !IsNoise(cfg, s) {
			t.Errorf("IsNoise(%q) = false, want true", s)
		}
	}

	informative := []string{
		"My name is Alice and I live in Taipei, working on a Go backend service.",
		"user.city = Taipei, set after moving from Hsinchu last spring",
	}
	for _, s := range informative {
		if IsNoise(cfg, s) {
			t.Errorf("IsNoise(%q) = true, want false", s)
		}
	}
}

func TestIsNoiseLengthCeiling(t *testing.T) {
	cfg := DefaultConfig()
	huge := make([]byte, cfg.MaxLength+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if !IsNoise(cfg, string(huge)) {
		t.Error("expected oversized text to be classified as noise")
	}
}
