package sse

import (
	"reflect"
	"strings"
	"testing"
)

const twoFrames = "event:progress\ndata:{\"agent\":\"A\",\"status\":\"running\",\"progress\":10}\n\n" +
	"event:progress\ndata:{\"agent\":\"B\",\"status\":\"running\",\"progress\":5}\n\n"

func TestDecoder_SingleChunk(t *testing.T) {
	d := NewDecoder()
	got := d.Feed([]byte(twoFrames))
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d: %q", len(got), got)
	}
	if !strings.Contains(got[0], `"agent":"A"`) || !strings.Contains(got[1], `"agent":"B"`) {
		t.Errorf("unexpected frames: %q", got)
	}
	if d.Pending() != "" {
		t.Errorf("expected empty buffer, got %q", d.Pending())
	}
}

func TestDecoder_TerminatorAcrossChunks(t *testing.T) {
	d := NewDecoder()
	if got := d.Feed([]byte("event:result\ndata:{}\n")); len(got) != 0 {
		t.Fatalf("frame emitted before terminator: %q", got)
	}
	got := d.Feed([]byte("\nevent:progress"))
	if len(got) != 1 || got[0] != "event:result\ndata:{}" {
		t.Fatalf("unexpected frames: %q", got)
	}
	if d.Pending() != "event:progress" {
		t.Errorf("pending = %q, want %q", d.Pending(), "event:progress")
	}
}

func TestDecoder_DiscardsWhitespaceFrames(t *testing.T) {
	d := NewDecoder()
	got := d.Feed([]byte("\n\n  \n\n\t\n\ndata:1\n\n"))
	if len(got) != 1 || got[0] != "data:1" {
		t.Fatalf("unexpected frames: %q", got)
	}
}

// Every way of cutting the stream into two or three chunks must yield the
// same frames as delivering it whole.
func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	stream := twoFrames + "event:result\ndata:{\"decision\":\"hold\",\"note\":\"å∑\"}\n\n"
	want := NewDecoder().Feed([]byte(stream))

	for i := 0; i <= len(stream); i++ {
		for j := i; j <= len(stream); j++ {
			d := NewDecoder()
			var got []string
			got = append(got, d.Feed([]byte(stream[:i]))...)
			got = append(got, d.Feed([]byte(stream[i:j]))...)
			got = append(got, d.Feed([]byte(stream[j:]))...)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("split (%d,%d): got %q, want %q", i, j, got, want)
			}
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	d := NewDecoder()
	var got []string
	for i := 0; i < len(twoFrames); i++ {
		got = append(got, d.Feed([]byte{twoFrames[i]})...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
}
