package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
	closed bool
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	if messageType == websocket.CloseMessage || messageType == websocket.PingMessage {
		return nil
	}
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func newTestWriter(ctx context.Context, ws wsWriter, priority, normal chan outboundFrame) *outboundWriter {
	return &outboundWriter{
		ws:           ws,
		ctx:          ctx,
		pingInterval: time.Hour,
		writeTimeout: time.Second,
		priority:     priority,
		normal:       normal,
	}
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{turnID: "t_1", binary: []byte{0x01, 0x02}}
	priority <- outboundFrame{text: []byte(`{"type":"clear"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	if err := newTestWriter(ctx, ws, priority, normal).Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	if !strings.Contains(writes[0].data, `"type":"clear"`) {
		t.Fatalf("first write was not clear: %q", writes[0].data)
	}
	if writes[1].messageType != websocket.BinaryMessage {
		t.Fatalf("second write type=%d, want BinaryMessage", writes[1].messageType)
	}
}

func TestOutboundWriter_CanceledTurnAudioDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{turnID: "t_1", binary: []byte{0x01}}
	normal <- outboundFrame{turnID: "t_1", binary: []byte{0x02}}
	normal <- outboundFrame{turnID: "t_2", binary: []byte{0x03}}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := newTestWriter(ctx, ws, priority, normal)
	w.isCanceled = func(id string) bool { return id == "t_1" }

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	writes := ws.snapshot()
	if len(writes) != 1 || writes[0].data != "\x03" {
		t.Fatalf("expected only t_2 audio, got %+v", writes)
	}
}

func TestOutboundWriter_ControlMessagesUnaffectedByCancelSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{text: []byte(`{"type":"mode","mode":"CALM"}`)}
	normal <- outboundFrame{text: []byte(`{"type":"ai_text_response","content":"ok","latency":1}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := newTestWriter(ctx, ws, priority, normal)
	w.isCanceled = func(string) bool { return true }

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_FlushesPriorityOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	priority <- outboundFrame{text: []byte(`{"type":"session_ended","message":"bye"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	cancel()
	if err := newTestWriter(ctx, ws, priority, normal).Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 || !strings.Contains(writes[0].data, `"type":"session_ended"`) {
		t.Fatalf("expected session_ended to flush on shutdown, writes=%+v", writes)
	}
	if !ws.closed {
		t.Fatalf("expected socket closed on shutdown")
	}
}
