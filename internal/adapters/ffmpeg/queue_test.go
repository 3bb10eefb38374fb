package ffmpeg

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/veilcap/veilcap/pkg/log"
)

// blockingWriter never completes a write until released, so queued
// buffers pile up behind it.
type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	buf     bytes.Buffer
	closed  bool
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{release: make(chan struct{})}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *blockingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type collectWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *collectWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *collectWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestFeedQueueRefusesWhenFull(t *testing.T) {
	w := newBlockingWriter()
	q := newFeedQueue("video", w, 2, log.NewNoopLogger())

	// One buffer may be in flight inside the write loop, so capacity+1
	// enqueues are guaranteed to succeed before refusal starts.
	accepted := 0
	for i := 0; i < 10; i++ {
		if q.enqueue([]byte{byte(i)}) {
			accepted++
		}
	}
	if accepted >= 10 {
		t.Fatal("queue never refused a buffer while the writer was blocked")
	}
	if accepted < 2 {
		t.Fatalf("accepted %d buffers, want at least queue depth", accepted)
	}

	close(w.release)
	q.close()
	if !w.closed {
		t.Error("destination not closed")
	}
}

func TestFeedQueueCloseFlushesRemaining(t *testing.T) {
	w := newBlockingWriter()
	q := newFeedQueue("audio", w, 4, log.NewNoopLogger())

	q.enqueue([]byte("abc"))
	q.enqueue([]byte("def"))

	close(w.release)
	q.close()

	w.mu.Lock()
	got := w.buf.String()
	closed := w.closed
	w.mu.Unlock()
	if got != "abcdef" {
		t.Errorf("flushed %q, want abcdef", got)
	}
	if !closed {
		t.Error("destination not closed")
	}
}

func TestFeedQueueEnqueueAfterClose(t *testing.T) {
	w := &collectWriter{}
	q := newFeedQueue("video", w, 2, log.NewNoopLogger())
	q.close()
	if q.enqueue([]byte("late")) {
		t.Error("enqueue accepted after close")
	}
}

func TestFeedQueueEmptyBuffer(t *testing.T) {
	w := &collectWriter{}
	q := newFeedQueue("video", w, 2, log.NewNoopLogger())
	defer q.close()
	if !q.enqueue(nil) {
		t.Error("empty buffer should be a no-op accept")
	}
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := &tailBuffer{limit: 8}
	b.Write([]byte("0123456789abcdef"))
	if got := b.tail(); got != "89abcdef" {
		t.Errorf("tail = %q, want 89abcdef", got)
	}
}

func TestTailTruncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := tail(long, 240)
	if len(got) != 243 || !strings.HasPrefix(got, "...") {
		t.Errorf("tail(len=300, 240) = len %d", len(got))
	}
	if tail("short", 240) != "short" {
		t.Error("short string should pass through")
	}
}
