package uart

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// streamPort frames an arbitrary byte stream by idle gaps. A reader
// goroutine forwards chunks as they arrive.
type streamPort struct {
	w    io.Writer
	idle time.Duration

	chunks chan []byte
	// err is the reader's terminal error, valid once chunks is closed.
	err error
	// pending holds bytes that did not fit the previous buffer.
	pending []byte

	closeOnce sync.Once
	closer    io.Closer
}

var _ Port = (*streamPort)(nil)

// NewStreamPort frames r by idle gaps of the given length and writes to w.
func NewStreamPort(r io.Reader, w io.Writer, idle time.Duration) Port {
	s := &streamPort{
		w:      w,
		idle:   idle,
		chunks: make(chan []byte, 16),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.pump(r)
	return s
}

func (s *streamPort) pump(r io.Reader) {
	for {
		b := make([]byte, 256)
		n, err := r.Read(b)
		if n > 0 {
			s.chunks <- b[:n]
		}
		if err != nil {
			s.err = err
			close(s.chunks)
			return
		}
	}
}

func (s *streamPort) ReadUntilIdle(ctx context.Context, buf []byte) (int, error) {
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	if n == len(buf) {
		return n, nil
	}

	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-timer.C:
			return n, nil
		case b, ok := <-s.chunks:
			if !ok {
				if n > 0 {
					return n, nil
				}
				return 0, fmt.Errorf("%w: receive: %w", ErrUart, s.err)
			}
			m := copy(buf[n:], b)
			n += m
			if m < len(b) {
				s.pending = append(s.pending, b[m:]...)
			}
			if n == len(buf) {
				return n, nil
			}
			timer.Reset(s.idle)
		}
	}
}

func (s *streamPort) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%w: transmit: %w", ErrUart, err)
	}
	return nil
}

func (s *streamPort) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
