package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"adlytics/internal/httpclient"
)

var ErrNotJSON = errors.New("response is not JSON")

// ParseNormalizer resolves a normalizer spec:
//
//	"" or "passthrough"   body unchanged
//	"pluck:<dot.path>"    nested JSON value at path (array indexes allowed)
//	"feed" or "feed:<n>"  RSS/Atom/JSON Feed parsed into items (first n)
func ParseNormalizer(spec string) (httpclient.Normalizer, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || strings.EqualFold(spec, "passthrough"):
		return httpclient.Identity, nil
	case strings.HasPrefix(spec, "pluck:"):
		path := strings.TrimSpace(strings.TrimPrefix(spec, "pluck:"))
		if path == "" {
			return nil, errors.New("pluck: empty path")
		}
		return Pluck(path), nil
	case strings.EqualFold(spec, "feed"):
		return Feed(0), nil
	case strings.HasPrefix(spec, "feed:"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(spec, "feed:")))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("feed: invalid item limit in %q", spec)
		}
		return Feed(n), nil
	default:
		return nil, fmt.Errorf("unknown normalizer %q", spec)
	}
}

// Pluck returns a normalizer extracting the value at a dot-separated path.
func Pluck(path string) httpclient.Normalizer {
	segs := strings.Split(path, ".")
	return httpclient.NormalizerFunc(func(_ context.Context, b httpclient.Body) (httpclient.Body, error) {
		if !b.IsJSON() {
			return httpclient.Body{}, ErrNotJSON
		}
		v, err := walk(b.JSON, segs)
		if err != nil {
			return httpclient.Body{}, fmt.Errorf("pluck %s: %w", path, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return httpclient.Body{}, err
		}
		return httpclient.Body{Status: b.Status, Raw: raw, JSON: v}, nil
	})
}

func walk(v any, segs []string) (any, error) {
	for i, seg := range segs {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found", strings.Join(segs[:i+1], "."))
			}
			v = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range at %q", seg, strings.Join(segs[:i], "."))
			}
			v = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", v, strings.Join(segs[:i], "."))
		}
	}
	return v, nil
}
