package analysis

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
)

// DefaultChunkSize is the read buffer used for the response body.
const DefaultChunkSize = 4096

// Chunks returns the body as a sequence of raw chunks. Each chunk is a
// fresh slice the consumer may keep. The sequence ends after io.EOF, or
// yields one final error.
//
// The body is closed when the sequence finishes, when the consumer stops
// early, and as soon as ctx is cancelled, which unblocks a pending Read.
func Chunks(ctx context.Context, body io.ReadCloser, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		var once sync.Once
		closeBody := func() { once.Do(func() { body.Close() }) }
		stop := context.AfterFunc(ctx, closeBody)
		defer func() {
			stop()
			closeBody()
		}()

		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		buf := make([]byte, size)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			// A read failing because cancellation closed the body reports
			// the cancellation, not the closed-body error.
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			yield(nil, err)
			return
		}
	}
}
