package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// BatchError reports a provider reply whose shape does not match the batch
// that was sent.
type BatchError struct {
	Provider string
	// Offset is the position of the batch's first text in the Embed input.
	Offset int
	// Index is the offending vector within the batch, or -1 when the reply
	// had the wrong number of vectors.
	Index int
	Got   int
	Want  int
}

func (e *BatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: batch at %d returned %d embeddings, expected %d", e.Provider, e.Offset, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: embedding %d has %d dimensions, expected %d", e.Provider, e.Offset+e.Index, e.Got, e.Want)
}

func (e *BatchError) Unwrap() error {
	if e.Index < 0 {
		return ErrEmbeddingCount
	}
	return ErrDimensionMismatch
}

// statusError is a non-2xx reply from an embedding endpoint.
type statusError struct {
	provider string
	code     int
	body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s embed request failed (%d): %s", e.provider, e.code, e.body)
}

// transientHTTP retries rate limits, server errors and transport failures,
// but never a cancelled or expired context.
func transientHTTP(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == 429 || se.code >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

type batchFunc func(ctx context.Context, batch []string) ([][]float32, error)

// batcher splits texts into provider-sized batches, pauses between them and
// retries transient failures. A batch is accepted only when it has one
// vector per text, each dim wide.
type batcher struct {
	provider   string
	size       int
	pause      time.Duration
	retries    int
	retryDelay time.Duration
	transient  func(error) bool
}

func (b batcher) run(ctx context.Context, texts []string, dim int, fn batchFunc) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for off := 0; off < len(texts); off += b.size {
		if off > 0 && !waitOrCancel(ctx, b.pause) {
			return nil, ctx.Err()
		}
		batch := texts[off:min(off+b.size, len(texts))]

		vecs, err := b.call(ctx, batch, fn)
		if err != nil {
			return nil, err
		}
		if err := checkBatch(b.provider, off, len(batch), dim, vecs); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (b batcher) call(ctx context.Context, batch []string, fn batchFunc) ([][]float32, error) {
	for attempt := 0; ; attempt++ {
		vecs, err := fn(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		if attempt >= b.retries || b.transient == nil || !b.transient(err) {
			return nil, err
		}
		if !waitOrCancel(ctx, b.retryDelay) {
			return nil, ctx.Err()
		}
	}
}

func checkBatch(provider string, off, n, dim int, vecs [][]float32) error {
	if len(vecs) != n {
		return &BatchError{Provider: provider, Offset: off, Index: -1, Got: len(vecs), Want: n}
	}
	for i, v := range vecs {
		if len(v) == 0 || (dim > 0 && len(v) != dim) {
			return &BatchError{Provider: provider, Offset: off, Index: i, Got: len(v), Want: dim}
		}
	}
	return nil
}

// waitOrCancel sleeps for d unless ctx ends first.
func waitOrCancel(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
