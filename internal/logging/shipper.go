package logging

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// shipperQueueSize is the number of records held while the sink is slow.
	shipperQueueSize = 1024

	// shipperWriteTimeout bounds a single write to the sink.
	shipperWriteTimeout = 2 * time.Second
)

// shipper forwards log records to a network sink from a single goroutine.
// Write never blocks: when the queue is full the record is dropped and
// counted.
type shipper struct {
	conn    net.Conn
	timeout time.Duration

	queue  chan []byte
	closed chan struct{}
	done   chan struct{}
	once   sync.Once

	dropped atomic.Int64
}

func newShipper(conn net.Conn, queueSize int, timeout time.Duration) *shipper {
	s := &shipper{
		conn:    conn,
		timeout: timeout,
		queue:   make(chan []byte, queueSize),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Write queues one encoded record. slog handlers call Write once per record.
func (s *shipper) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, net.ErrClosed
	default:
	}

	b := make([]byte, len(p))
	copy(b, p)

	select {
	case s.queue <- b:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped returns the number of records lost to a full queue or failed writes.
func (s *shipper) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes queued records, each still bounded by the write timeout,
// and closes the connection.
func (s *shipper) Close() error {
	s.once.Do(func() { close(s.closed) })
	<-s.done
	return s.conn.Close()
}

func (s *shipper) run() {
	defer close(s.done)

	for {
		select {
		case b := <-s.queue:
			s.send(b)
		case <-s.closed:
			for {
				select {
				case b := <-s.queue:
					s.send(b)
				default:
					return
				}
			}
		}
	}
}

func (s *shipper) send(b []byte) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		s.dropped.Add(1)
		return
	}
	if _, err := s.conn.Write(b); err != nil {
		s.dropped.Add(1)
	}
}
