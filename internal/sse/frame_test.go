package sse

import (
	"bytes"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantEvent string
		wantData  any
	}{
		{
			name:      "progress object",
			text:      "event:progress\ndata:{\"agent\":\"A\",\"progress\":10}",
			wantEvent: "progress",
			wantData:  map[string]any{"agent": "A", "progress": float64(10)},
		},
		{
			name:      "event name trimmed",
			text:      "event:  result \ndata:{\"decision\":\"hold\"}",
			wantEvent: "result",
			wantData:  map[string]any{"decision": "hold"},
		},
		{
			name:      "default event name",
			text:      "data:42",
			wantEvent: DefaultEvent,
			wantData:  float64(42),
		},
		{
			name:      "invalid json kept verbatim",
			text:      "event:progress\ndata:not-json",
			wantEvent: "progress",
			wantData:  "not-json",
		},
		{
			name:      "content whitespace preserved",
			text:      "data: not json ",
			wantEvent: DefaultEvent,
			wantData:  " not json ",
		},
		{
			name:      "leading space before json",
			text:      "data: {\"a\":true}",
			wantEvent: DefaultEvent,
			wantData:  map[string]any{"a": true},
		},
		{
			name:      "last data line wins",
			text:      "event:result\ndata:{\"n\":1}\ndata:{\"n\":2}",
			wantEvent: "result",
			wantData:  map[string]any{"n": float64(2)},
		},
		{
			name:      "unknown prefixes ignored",
			text:      ": comment\nid:7\nretry:100\nevent:progress\ndata:[]",
			wantEvent: "progress",
			wantData:  []any{},
		},
		{
			name:      "no data line",
			text:      "event:ping",
			wantEvent: "ping",
			wantData:  nil,
		},
		{
			name:      "crlf line endings",
			text:      "event:result\r\ndata:{\"ok\":1}\r",
			wantEvent: "result",
			wantData:  map[string]any{"ok": float64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFrame(tt.text)
			if f.Event != tt.wantEvent {
				t.Errorf("event = %q, want %q", f.Event, tt.wantEvent)
			}
			if !reflect.DeepEqual(f.Data, tt.wantData) {
				t.Errorf("data = %#v, want %#v", f.Data, tt.wantData)
			}
		})
	}
}

func TestFrame_Object(t *testing.T) {
	if _, ok := ParseFrame("data:{\"a\":1}").Object(); !ok {
		t.Error("expected object")
	}
	if _, ok := ParseFrame("data:null").Object(); ok {
		t.Error("null should not be an object")
	}
	if _, ok := ParseFrame("data:\"text\"").Object(); ok {
		t.Error("string should not be an object")
	}
}

func TestWriteEvent_RoundTripsThroughDecoder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvent(&buf, "progress", map[string]any{"agent": "A", "progress": 50}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteEvent(&buf, "", "plain"); err != nil {
		t.Fatalf("write: %v", err)
	}

	frames := NewDecoder().Feed(buf.Bytes())
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	first := ParseFrame(frames[0])
	if first.Event != "progress" {
		t.Errorf("event = %q", first.Event)
	}
	obj, ok := first.Object()
	if !ok || obj["agent"] != "A" {
		t.Errorf("data = %#v", first.Data)
	}
	second := ParseFrame(frames[1])
	if second.Event != DefaultEvent || second.Data != "plain" {
		t.Errorf("second frame = %+v", second)
	}
}

func TestPrepareStream_SetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	flusher, err := PrepareStream(rec)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := WriteAndFlush(rec, flusher, "snapshot", map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
	if !rec.Flushed {
		t.Error("expected flush")
	}
	if got := rec.Body.String(); got != "event:snapshot\ndata:{\"n\":1}\n\n" {
		t.Errorf("body = %q", got)
	}
}
