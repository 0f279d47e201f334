package analysis

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

const (
	frameA      = "event:progress\ndata:{\"agent\":\"A\",\"status\":\"running\",\"progress\":10}\n\n"
	frameB      = "event:progress\ndata:{\"agent\":\"B\",\"status\":\"running\",\"progress\":5}\n\n"
	frameResult = "event:result\ndata:{\"decision\":\"hold\"}\n\n"
)

var testRequest = Request{Symbol: "BTC", Agents: []string{"technical_analyst"}, Model: "deepseek-reasoner"}

// chunkBody delivers fixed chunks, then err (io.EOF when nil).
type chunkBody struct {
	chunks [][]byte
	err    error
	closed atomic.Bool
}

func newChunkBody(err error, chunks ...string) *chunkBody {
	b := &chunkBody{err: err}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, errors.New("read on closed body")
	}
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if len(b.chunks[0]) == 0 {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error {
	b.closed.Store(true)
	return nil
}

func bodyOpener(body io.ReadCloser) Opener {
	return OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return body, nil
	})
}
