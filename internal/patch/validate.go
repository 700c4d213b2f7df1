package patch

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrNotFound     = errors.New("executable not found")
	ErrSizeMismatch = errors.New("unexpected file size")
)

// SizeMismatchError is returned by Validate when the target is not exactly the
// expected size. It matches ErrSizeMismatch with errors.Is.
type SizeMismatchError struct {
	Path string
	Want int64
	Got  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: want %d (%#x) bytes, got %d (%#x)",
		e.Path, ErrSizeMismatch, e.Want, e.Want, e.Got, e.Got)
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// Validate checks that path exists, can be opened for reading and is exactly
// expectedSize bytes long. A nil error means the file passed.
func Validate(path string, expectedSize int64) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for validation: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seeking to end of %s: %w", path, err)
	}
	if size != expectedSize {
		return &SizeMismatchError{Path: path, Want: expectedSize, Got: size}
	}
	return nil
}
