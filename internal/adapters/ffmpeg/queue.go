package ffmpeg

import (
	"io"
	"sync"
	"time"

	"github.com/veilcap/veilcap/internal/ports"
)

const (
	videoQueueDepth = 4
	audioQueueDepth = 256

	slowWriteThreshold = 50 * time.Millisecond
)

// feedQueue decouples the capture callback path from pipe writes. The
// encoder process reads at its own pace; when it falls behind, frames
// are refused instead of blocking the caller.
type feedQueue struct {
	name string
	dst  io.WriteCloser

	queue chan []byte
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	logger ports.Logger
}

func newFeedQueue(name string, dst io.WriteCloser, depth int, logger ports.Logger) *feedQueue {
	q := &feedQueue{
		name:   name,
		dst:    dst,
		queue:  make(chan []byte, depth),
		done:   make(chan struct{}),
		logger: logger,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// enqueue offers a buffer to the write loop. Returns false when the
// queue is full or the sink is shut down.
func (q *feedQueue) enqueue(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.queue <- b:
		return true
	default:
		return false
	}
}

// close drains remaining buffers to the pipe, then closes it, which
// signals end-of-input to the encoder.
func (q *feedQueue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.wg.Wait()
		for {
			select {
			case b := <-q.queue:
				if _, err := q.dst.Write(b); err != nil {
					q.dst.Close()
					return
				}
			default:
				q.dst.Close()
				return
			}
		}
	})
}

func (q *feedQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case b := <-q.queue:
			start := time.Now()
			if _, err := q.dst.Write(b); err != nil {
				q.logger.Debug("encoder pipe write failed",
					ports.String("queue", q.name),
					ports.Err(err))
				return
			}
			if d := time.Since(start); d > slowWriteThreshold {
				q.logger.Debug("slow encoder pipe write",
					ports.String("queue", q.name),
					ports.Duration("duration", d),
					ports.Int("bytes", len(b)))
			}
		}
	}
}
