package patch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	path, _ := writeTarget(t, 0x400)

	tests := []struct {
		name     string
		path     string
		expected int64
		want     error
	}{
		{name: "exact size", path: path, expected: 0x400},
		{name: "file is smaller", path: path, expected: 0x401, want: ErrSizeMismatch},
		{name: "file is larger", path: path, expected: 0x3FF, want: ErrSizeMismatch},
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.exe"), expected: 0x400, want: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.path, tt.expected)
			if tt.want == nil && err != nil {
				t.Errorf("Validate() want = nil, got = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() want = %v, got = %v", tt.want, err)
			}
		})
	}
}

func TestValidate_SizeMismatchDetails(t *testing.T) {
	path, _ := writeTarget(t, 16)

	var mismatch *SizeMismatchError
	if err := Validate(path, 32); !errors.As(err, &mismatch) {
		t.Fatalf("Validate() want = *SizeMismatchError, got = %v", err)
	}
	if mismatch.Want != 32 || mismatch.Got != 16 {
		t.Errorf("SizeMismatchError want = 32/16, got = %d/%d", mismatch.Want, mismatch.Got)
	}
}

func TestValidate_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	path, _ := writeTarget(t, 16)
	if err := os.Chmod(path, 0o200); err != nil {
		t.Fatalf("error changing permissions: %s", err)
	}
	if err := Validate(path, 16); err == nil || errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Validate() want = open error, got = %v", err)
	}
}
