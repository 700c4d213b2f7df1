package patch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrStreamClosed = errors.New("stream is not open")
	ErrOutOfRange   = errors.New("write range is outside the file")
)

// Stream is a read-write handle on the target file. The size of the file is
// captured when the stream is opened and every write must fall within it.
type Stream struct {
	file     *os.File
	size     int64
	writable bool
}

// OpenStream opens path for reading and writing in place.
func OpenStream(path string) (*Stream, error) {
	return openStream(path, os.O_RDWR)
}

func openStream(path string, flag int) (*Stream, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading size of %s: %w", path, err)
	}
	return &Stream{file: f, size: info.Size(), writable: flag&(os.O_WRONLY|os.O_RDWR) != 0}, nil
}

// IsOpen reports whether the stream can still be read from or written to.
func (s *Stream) IsOpen() bool {
	return s != nil && s.file != nil
}

// Size returns the file size captured when the stream was opened.
func (s *Stream) Size() int64 {
	if !s.IsOpen() {
		return 0
	}
	return s.size
}

// Name returns the path the stream was opened with.
func (s *Stream) Name() string {
	if !s.IsOpen() {
		return ""
	}
	return s.file.Name()
}

// WriteByteAt writes a single byte at off.
func (s *Stream) WriteByteAt(off int64, b byte) error {
	return s.WriteBytesAt(off, []byte{b})
}

// WriteRepeatedAt writes n copies of b starting at off.
func (s *Stream) WriteRepeatedAt(off int64, b byte, n int) error {
	if n < 0 {
		return fmt.Errorf("negative repeat count %d", n)
	}
	return s.WriteBytesAt(off, bytes.Repeat([]byte{b}, n))
}

// WriteValuesAt encodes data with encoding/binary in the given byte order and
// writes the result starting at off. data must be a fixed-size value or a slice
// of fixed-size values.
func (s *Stream) WriteValuesAt(off int64, order binary.ByteOrder, data interface{}) error {
	if !s.IsOpen() {
		return ErrStreamClosed
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, order, data); err != nil {
		return fmt.Errorf("encoding values for %#x: %w", off, err)
	}
	return s.WriteBytesAt(off, buf.Bytes())
}

// WriteBytesAt seeks to off and writes data there. The first failing operation
// stops the call; bytes already written are not rolled back.
func (s *Stream) WriteBytesAt(off int64, data []byte) error {
	if !s.IsOpen() {
		return ErrStreamClosed
	}
	if err := s.checkRange(off, len(data)); err != nil {
		return err
	}
	if _, err := s.file.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to %#x: %w", off, err)
	}
	n, err := s.file.Write(data)
	if err != nil {
		return fmt.Errorf("writing %d bytes at %#x (%d written): %w", len(data), off, n, err)
	}
	return nil
}

// ReadAt reads n bytes starting at off without moving the write cursor.
func (s *Stream) ReadAt(off int64, n int) ([]byte, error) {
	if !s.IsOpen() {
		return nil, ErrStreamClosed
	}
	if err := s.checkRange(off, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := s.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("reading %d bytes at %#x: %w", n, off, err)
	}
	return buf, nil
}

func (s *Stream) checkRange(off int64, n int) error {
	// Compared against the remaining length so off near math.MaxInt64 cannot wrap.
	if off < 0 || n < 0 || off > s.size || int64(n) > s.size-off {
		return fmt.Errorf("%#x+%d with file size %#x: %w", off, n, s.size, ErrOutOfRange)
	}
	return nil
}

// Close flushes any writes and releases the file. Closing an already closed stream is a no-op.
func (s *Stream) Close() error {
	if !s.IsOpen() {
		return nil
	}
	f := s.file
	s.file = nil
	if !s.writable {
		return f.Close()
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing %s: %w", f.Name(), err)
	}
	return f.Close()
}
