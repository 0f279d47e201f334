// Package replay records upstream analysis streams to disk and serves them
// back as a fake upstream, for development without the real service.
package replay

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// Options controls how a recording is played back.
type Options struct {
	MinChunk int           // smallest write, default 1
	MaxChunk int           // largest write, default 64
	Delay    time.Duration // pause between writes
	Seed     uint64        // 0 picks a random seed
}

// Handler serves data as an event stream on every request, split into
// randomly sized writes so frames straddle chunk boundaries.
type Handler struct {
	data []byte
	opts Options
}

// NewHandler creates a playback handler for a recorded stream.
func NewHandler(data []byte, opts Options) *Handler {
	if opts.MinChunk <= 0 {
		opts.MinChunk = 1
	}
	if opts.MaxChunk < opts.MinChunk {
		opts.MaxChunk = max(opts.MinChunk, 64)
	}
	return &Handler{data: data, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req protocol.RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		http.Error(w, "invalid run request: "+err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("replay.request", "tickers", req.Tickers, "agents", req.SelectedAgents, "model", req.ModelName)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	seed := h.opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	written := 0
	for _, chunk := range Split(h.data, h.opts.MinChunk, h.opts.MaxChunk, rng) {
		if h.opts.Delay > 0 {
			select {
			case <-r.Context().Done():
				slog.Info("replay.client_gone", "written", written)
				return
			case <-time.After(h.opts.Delay):
			}
		}
		if _, err := w.Write(chunk); err != nil {
			slog.Debug("replay.write_failed", "written", written, "error", err)
			return
		}
		written += len(chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	slog.Info("replay.done", "bytes", written)
}

// Split cuts data into consecutive chunks of between minSize and maxSize
// bytes; the last chunk may be shorter.
func Split(data []byte, minSize, maxSize int, rng *rand.Rand) [][]byte {
	if minSize <= 0 {
		minSize = 1
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := minSize
		if maxSize > minSize {
			n += rng.IntN(maxSize - minSize + 1)
		}
		n = min(n, len(data))
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks
}
