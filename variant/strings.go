package variant

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/errors"
)

// Encoding selects the character encoding of a host String exchange.
type Encoding uint8

const (
	UTF8 Encoding = iota
	Latin1
	UTF16
	UTF32
	// Wide uses the host's wchar_t width.
	Wide
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case Latin1:
		return "latin-1"
	case UTF16:
		return "utf-16"
	case UTF32:
		return "utf-32"
	case Wide:
		return "wide"
	}
	return "unknown"
}

var (
	utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf32LE = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
)

// codec returns the text encoding and code unit width of enc. A nil
// encoding means the bytes are already UTF-8.
func (m *Marshaler) codec(enc Encoding) (encoding.Encoding, uint32, error) {
	switch enc {
	case UTF8:
		return nil, 1, nil
	case Latin1:
		return charmap.ISO8859_1, 1, nil
	case UTF16:
		return utf16LE, 2, nil
	case UTF32:
		return utf32LE, 4, nil
	case Wide:
		switch m.table.WideCharSize {
		case 2:
			return utf16LE, 2, nil
		case 4:
			return utf32LE, 4, nil
		}
		return nil, 0, errors.Unsupported(errors.PhaseMarshal, "wide char size of host")
	}
	return nil, 0, errors.InvalidInput(errors.PhaseMarshal, "unknown encoding "+enc.String())
}

func (m *Marshaler) stringNewFunc(enc Encoding) func(dst, contents abi.Ptr, length int64) {
	switch enc {
	case Latin1:
		return m.table.StringNewWithLatin1CharsAndLen
	case UTF16:
		return m.table.StringNewWithUtf16CharsAndLen
	case UTF32:
		return m.table.StringNewWithUtf32CharsAndLen
	case Wide:
		return m.table.StringNewWithWideCharsAndLen
	}
	return m.table.StringNewWithUtf8CharsAndLen
}

func (m *Marshaler) stringToFunc(enc Encoding) func(self, text abi.Ptr, maxWriteLength int64) int64 {
	switch enc {
	case Latin1:
		return m.table.StringToLatin1Chars
	case UTF16:
		return m.table.StringToUtf16Chars
	case UTF32:
		return m.table.StringToUtf32Chars
	case Wide:
		return m.table.StringToWideChars
	}
	return m.table.StringToUtf8Chars
}

// NewString constructs String typed storage holding s in the uninitialized
// dst, passing the characters to the host in enc.
func (m *Marshaler) NewString(dst abi.Ptr, s string, enc Encoding) error {
	codec, unit, err := m.codec(enc)
	if err != nil {
		return err
	}
	raw := []byte(s)
	if codec != nil {
		if raw, err = codec.NewEncoder().Bytes(raw); err != nil {
			return errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "encode "+enc.String())
		}
	}
	return m.withChars(raw, func(contents abi.Ptr) {
		m.stringNewFunc(enc)(dst, contents, int64(len(raw))/int64(unit))
	})
}

// withChars copies raw into temporary host memory for the duration of fn.
func (m *Marshaler) withChars(raw []byte, fn func(contents abi.Ptr)) error {
	if len(raw) == 0 {
		fn(abi.Null)
		return nil
	}
	p, err := m.alloc(uint32(len(raw)))
	if err != nil {
		return err
	}
	defer m.table.MemFree(p)
	if err := m.mem.Write(uint32(p), raw); err != nil {
		return errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "copy characters")
	}
	fn(p)
	return nil
}

// String reads String typed storage at p, receiving the characters from the
// host in enc.
func (m *Marshaler) String(p abi.Ptr, enc Encoding) (string, error) {
	codec, unit, err := m.codec(enc)
	if err != nil {
		return "", err
	}
	to := m.stringToFunc(enc)
	units := to(p, abi.Null, 0)
	if units <= 0 {
		return "", nil
	}
	size := uint32(units) * unit
	buf, err := m.alloc(size)
	if err != nil {
		return "", err
	}
	defer m.table.MemFree(buf)
	to(p, buf, units)
	raw, err := m.mem.Read(uint32(buf), size)
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read characters")
	}
	if codec == nil {
		return string(raw), nil
	}
	out, err := codec.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "decode "+enc.String())
	}
	return string(out), nil
}

// newStringKind constructs String, StringName or NodePath typed storage.
func (m *Marshaler) newStringKind(t abi.VariantType, p abi.Ptr, s string) error {
	switch t {
	case abi.VariantTypeString:
		return m.NewString(p, s, UTF8)
	case abi.VariantTypeStringName:
		raw := []byte(s)
		return m.withChars(raw, func(contents abi.Ptr) {
			m.table.StringNameNewWithUtf8CharsAndLen(p, contents, int64(len(raw)))
		})
	}
	ctor := m.table.VariantGetPtrConstructor(t, 2)
	if ctor == nil {
		return errors.Unsupported(errors.PhaseMarshal, t.String()+" from String")
	}
	s2 := newScratch()
	defer m.release(s2)
	tmp, err := m.scratchTyped(s2, abi.VariantTypeString, s)
	if err != nil {
		return err
	}
	ctor(p, []abi.Ptr{tmp})
	return nil
}

// stringFrom reads StringName or NodePath typed storage through a String.
func (m *Marshaler) stringFrom(t abi.VariantType, p abi.Ptr) (string, error) {
	idx := int32(2)
	if t == abi.VariantTypeNodePath {
		idx = 3
	}
	ctor := m.table.VariantGetPtrConstructor(abi.VariantTypeString, idx)
	if ctor == nil {
		return "", errors.Unsupported(errors.PhaseMarshal, "String from "+t.String())
	}
	s := newScratch()
	defer m.release(s)
	tmp, err := m.scratchAlloc(s, abi.TypeSize(abi.VariantTypeString))
	if err != nil {
		return "", err
	}
	ctor(tmp, []abi.Ptr{p})
	s.constructed(tmp, abi.VariantTypeString, false)
	return m.String(tmp, UTF8)
}

// StringName returns new StringName typed storage holding s. The caller
// releases it with FreeTyped.
func (m *Marshaler) StringName(s string) (abi.Ptr, error) {
	return m.NewTyped(abi.VariantTypeStringName, s)
}

// NewTyped allocates typed storage of t holding v.
func (m *Marshaler) NewTyped(t abi.VariantType, v any) (abi.Ptr, error) {
	p, err := m.alloc(abi.TypeSize(t))
	if err != nil {
		return abi.Null, err
	}
	if err := m.WriteTyped(t, p, v); err != nil {
		m.table.MemFree(p)
		return abi.Null, err
	}
	return p, nil
}

// FreeTyped destroys and frees typed storage allocated by NewTyped.
func (m *Marshaler) FreeTyped(t abi.VariantType, p abi.Ptr) {
	if p.IsNull() {
		return
	}
	m.DestroyTyped(t, p)
	m.table.MemFree(p)
}
