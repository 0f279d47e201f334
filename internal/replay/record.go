package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
)

// Recorder is an analysis.Opener that copies every response body it opens
// into a file, byte for byte, as the session reads it.
type Recorder struct {
	Opener analysis.Opener
	Path   string
}

func (r Recorder) Open(ctx context.Context, req analysis.Request) (io.ReadCloser, error) {
	f, err := os.Create(r.Path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	body, err := r.Opener.Open(ctx, req)
	if err != nil {
		f.Close()
		os.Remove(r.Path)
		return nil, err
	}
	return &teeBody{body: body, file: f, r: io.TeeReader(body, f)}, nil
}

type teeBody struct {
	body io.ReadCloser
	file *os.File
	r    io.Reader
	once sync.Once
	err  error
}

func (t *teeBody) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *teeBody) Close() error {
	t.once.Do(func() {
		err := t.body.Close()
		if ferr := t.file.Close(); err == nil {
			err = ferr
		}
		t.err = err
	})
	return t.err
}
