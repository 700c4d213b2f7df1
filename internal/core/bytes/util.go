package bytes

import (
	"bytes"
	"fmt"
	"unicode/utf16"
)

// ConvertToUtf16 converts a UTF-8 string to UTF-16 LE and return it as an array of bytes.
func ConvertToUtf16(str string) []byte {
	strRunes := bytes.Runes([]byte(str))
	encoded := utf16.Encode(strRunes)

	// Convert the array of UTF-16 elements to a slice of uint8 elements in
	// little endian order. E.g: [0x1234] -> [0x34, 0x12]
	expanded := make([]uint8, 2*len(encoded))
	for i, v := range encoded {
		idx := i * 2
		expanded[idx] = uint8(v)
		expanded[idx+1] = uint8((v >> 8) & 0xFF)
	}
	return expanded
}

// PadTo returns a copy of b extended with 0s to n bytes. It is an error for b
// to already be longer than n.
func PadTo(b []byte, n int) ([]byte, error) {
	if len(b) > n {
		return nil, fmt.Errorf("%d bytes do not fit in a %d byte block", len(b), n)
	}
	padded := make([]byte, n)
	copy(padded, b)
	return padded, nil
}

// StripPadding returns a slice of b without the trailing 0s.
func StripPadding(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return b[:i+1]
		}
	}
	return []byte{}
}
