package vectorindexutils

import "testing"

func TestNewIndexEmptyProviderDisabled(t *testing.T) {
	idx, err := NewIndex(&NewIndexOpts{})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	if idx != nil {
		t.Errorf("expected nil index for empty provider, got %v", idx)
	}
}

func TestNewIndexUnsupportedProvider(t *testing.T) {
	_, err := NewIndex(&NewIndexOpts{ProviderType: "pinecone"})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"localhost:6334", "localhost", 6334},
		{"qdrant.internal:443", "qdrant.internal", 443},
		{"localhost", "localhost", 0},
		{"", "", 0},
	}
	for _, c := range cases {
		host, port := splitHostPort(c.in)
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("splitHostPort(%q) = (%q, %d), want (%q, %d)", c.in, host, port, c.wantHost, c.wantPort)
		}
	}
}
