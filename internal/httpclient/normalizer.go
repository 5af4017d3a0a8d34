package httpclient

import "context"

// Normalizer reshapes a decoded response into the form a caller consumes.
type Normalizer interface {
	Normalize(ctx context.Context, b Body) (Body, error)
}

// NormalizerFunc adapts a plain function to Normalizer.
type NormalizerFunc func(ctx context.Context, b Body) (Body, error)

func (f NormalizerFunc) Normalize(ctx context.Context, b Body) (Body, error) { return f(ctx, b) }

// Identity returns bodies unchanged.
var Identity Normalizer = NormalizerFunc(func(_ context.Context, b Body) (Body, error) { return b, nil })
