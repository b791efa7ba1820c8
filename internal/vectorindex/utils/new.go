// Package vectorindexutils selects a vectorindex.Index implementation by
// provider name, mirroring pkg/embeddings/utils' embedder switch and the
// teacher's pkg/vector/utils.NewVectorDriver.
package vectorindexutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/vectorindex"
	"github.com/memoryforge/mnemo/internal/vectorindex/chroma"
	"github.com/memoryforge/mnemo/internal/vectorindex/qdrant"
)

// NewIndexOpts configures NewIndex. Provider "" means no external index
// is wanted; callers should treat a nil, nil return as "use the Fact
// Store's built-in sqlite-vec index instead."
type NewIndexOpts struct {
	ProviderType string
	TargetURL    string
	Dimensions   uint64
	APIKey       string
	Logger       *zap.Logger
}

// NewIndex builds the named external vector index, or returns (nil, nil)
// when ProviderType is empty.
func NewIndex(o *NewIndexOpts) (vectorindex.Index, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case "":
		return nil, nil
	case "chroma":
		return chroma.New(chroma.Config{URL: o.TargetURL}, logger)
	case "qdrant":
		host, port := splitHostPort(o.TargetURL)
		return qdrant.New(qdrant.Config{
			Host:       host,
			Port:       port,
			APIKey:     o.APIKey,
			Dimensions: o.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported vector index provider: %s", o.ProviderType)
	}
}

// splitHostPort parses a "host:port" TargetURL into its parts, defaulting
// port to 0 (New fills in Qdrant's default) when absent or malformed.
func splitHostPort(target string) (string, int) {
	host, portStr := target, ""
	for i := len(target) - 1; i >= 0; i-- {
		if target[i] == ':' {
			host, portStr = target[:i], target[i+1:]
			break
		}
	}
	if host == "" {
		host = target
	}
	port := 0
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return host, 0
		}
		port = port*10 + int(c-'0')
	}
	return host, port
}
