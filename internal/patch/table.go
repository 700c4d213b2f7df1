package patch

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	corebytes "github.com/dcrodman/binpatch/internal/core/bytes"
)

//go:embed tables/wow-1.12.1.yaml
var builtinTable []byte

// Builtin returns the patch set compiled into the binary.
func Builtin() *Set {
	set, err := ParseTable(builtinTable)
	if err != nil {
		panic("patch: invalid builtin table: " + err.Error())
	}
	return set
}

// number accepts YAML integers written in decimal or with a 0x, 0o or 0b prefix.
type number int64

func (n *number) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = number(v)
	return nil
}

type tableFile struct {
	Name         string       `yaml:"name"`
	ExpectedSize number       `yaml:"expected_size"`
	Patches      []tablePatch `yaml:"patches"`
}

type tablePatch struct {
	Description string  `yaml:"description"`
	Offset      *number `yaml:"offset"`
	Bytes       string  `yaml:"bytes"`
	Fill        *struct {
		Value number `yaml:"value"`
		Count number `yaml:"count"`
	} `yaml:"fill"`
	// Text is written in Encoding (ascii by default) and zero padded to Pad bytes.
	Text     string `yaml:"text"`
	Pad      number `yaml:"pad"`
	Encoding string `yaml:"encoding"`
}

// ParseTable decodes a YAML patch table.
func ParseTable(b []byte) (*Set, error) {
	var table tableFile
	if err := yaml.Unmarshal(b, &table); err != nil {
		return nil, fmt.Errorf("parsing patch table: %w", err)
	}
	if table.ExpectedSize < 0 {
		return nil, fmt.Errorf("expected_size must not be negative, got %d", table.ExpectedSize)
	}

	set := &Set{Name: table.Name, ExpectedSize: int64(table.ExpectedSize)}
	for i, p := range table.Patches {
		entry, err := p.entry()
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
		set.Entries = append(set.Entries, entry)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// LoadTable reads and decodes the YAML patch table at path.
func LoadTable(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch table: %w", err)
	}
	return ParseTable(b)
}

func (p tablePatch) entry() (Entry, error) {
	if p.Offset == nil {
		return Entry{}, errors.New("missing offset")
	}
	offset := int64(*p.Offset)

	kinds := 0
	for _, set := range []bool{p.Bytes != "", p.Fill != nil, p.Text != ""} {
		if set {
			kinds++
		}
	}
	if kinds > 1 {
		return Entry{}, errors.New("bytes, fill and text are mutually exclusive")
	}

	switch {
	case p.Fill != nil:
		if p.Fill.Value < 0 || p.Fill.Value > 0xFF {
			return Entry{}, fmt.Errorf("fill value %#x does not fit in a byte", int64(p.Fill.Value))
		}
		if p.Fill.Count <= 0 {
			return Entry{}, fmt.Errorf("fill count must be positive, got %d", p.Fill.Count)
		}
		return Fill(offset, byte(p.Fill.Value), int(p.Fill.Count)).Describe(p.Description), nil
	case p.Bytes != "":
		data, err := ParseHex(p.Bytes)
		if err != nil {
			return Entry{}, err
		}
		return NewEntry(offset, data...).Describe(p.Description), nil
	case p.Text != "":
		data, err := encodeText(p.Text, p.Encoding, int(p.Pad))
		if err != nil {
			return Entry{}, err
		}
		entry := NewEntry(offset, data...).Describe(p.Description)
		entry.Text = p.Text
		return entry, nil
	default:
		return Entry{}, errors.New("one of bytes, fill or text is required")
	}
}

// Single and multi-byte code pages a text patch may be written in.
var textEncodings = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"latin1":       charmap.ISO8859_1,
	"shift_jis":    japanese.ShiftJIS,
}

func encodeText(text, enc string, pad int) ([]byte, error) {
	var data []byte
	switch name := strings.ToLower(enc); name {
	case "", "ascii", "utf8", "utf-8":
		data = []byte(text)
	case "utf16le", "utf-16le":
		data = corebytes.ConvertToUtf16(text)
	default:
		e, ok := textEncodings[name]
		if !ok {
			return nil, fmt.Errorf("unsupported text encoding %q", enc)
		}
		encoded, err := e.NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("encoding %q as %s: %w", text, name, err)
		}
		data = encoded
	}
	if pad < 0 {
		return nil, fmt.Errorf("pad must not be negative, got %d", pad)
	}
	if pad == 0 {
		return data, nil
	}
	return corebytes.PadTo(data, pad)
}

// ParseHex decodes whitespace separated hex text such as "C7 05 0x74".
func ParseHex(s string) ([]byte, error) {
	var sb strings.Builder
	for _, field := range strings.Fields(s) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		if len(field)%2 != 0 {
			field = "0" + field
		}
		sb.WriteString(field)
	}
	data, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes %q: %w", s, err)
	}
	return data, nil
}
