// Package limits bounds what a tool may produce: captured output size and
// script wall time.
package limits

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrOutputLimit is returned once a Buffer's cap is reached.
	ErrOutputLimit = errors.New("OUTPUT_LIMIT")
	// ErrTimeout reports a run that exceeded its wall-time budget.
	ErrTimeout = errors.New("TIMEOUT")
)

const (
	DefaultOutputKB = 64
	DefaultWallMS   = 1000
)

// Buffer is an io.Writer that keeps at most a fixed number of bytes. A write
// that does not fit is truncated and reports ErrOutputLimit.
type Buffer struct {
	buf       bytes.Buffer
	capBytes  int
	truncated bool
}

// NewBuffer returns a Buffer holding maxKB KiB. Zero or less means
// DefaultOutputKB.
func NewBuffer(maxKB int) *Buffer {
	if maxKB <= 0 {
		maxKB = DefaultOutputKB
	}
	return &Buffer{capBytes: maxKB * 1024}
}

func (b *Buffer) Write(p []byte) (int, error) {
	remaining := b.capBytes - b.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return 0, ErrOutputLimit
	}
	if len(p) > remaining {
		_, _ = b.buf.Write(p[:remaining])
		b.truncated = true
		return remaining, ErrOutputLimit
	}
	return b.buf.Write(p)
}

// WriteString is Write for strings.
func (b *Buffer) WriteString(s string) (int, error) { return b.Write([]byte(s)) }

func (b *Buffer) Bytes() []byte   { return b.buf.Bytes() }
func (b *Buffer) String() string  { return b.buf.String() }
func (b *Buffer) Len() int        { return b.buf.Len() }
func (b *Buffer) Truncated() bool { return b.truncated }

// Quiet returns a writer over b that drops what does not fit without
// failing the write. Subprocess streams use it so that a chatty process is
// not killed by a short write.
func (b *Buffer) Quiet() io.Writer { return quiet{b} }

type quiet struct{ b *Buffer }

func (q quiet) Write(p []byte) (int, error) {
	_, _ = q.b.Write(p)
	return len(p), nil
}

// WithWall returns a context cancelled after wallMS milliseconds. Zero or
// less means DefaultWallMS.
func WithWall(parent context.Context, wallMS int) (context.Context, context.CancelFunc) {
	if wallMS <= 0 {
		wallMS = DefaultWallMS
	}
	return context.WithTimeout(parent, time.Duration(wallMS)*time.Millisecond)
}
