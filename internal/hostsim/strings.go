package hostsim

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/wippyai/gdext-bridge/abi"
)

type hstring struct {
	s    string
	refs int32
}

// newString interns s with one reference. The empty string is id 0 and is
// never counted.
func (h *Host) newString(s string) uint32 {
	if s == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextString++
	h.strings[h.nextString] = &hstring{s: s, refs: 1}
	return h.nextString
}

func (h *Host) str(id uint32) string {
	if id == 0 {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.strings[id]; ok {
		return s.s
	}
	h.failLocked("use of released string %d", id)
	return ""
}

func (h *Host) strRetain(id uint32) {
	if id == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.strings[id]; ok {
		s.refs++
	}
}

func (h *Host) strRelease(id uint32) {
	if id == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.strings[id]
	if !ok {
		h.failLocked("double release of string %d", id)
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(h.strings, id)
	}
}

// typedString reads String, StringName or NodePath typed storage.
func (h *Host) typedString(p abi.Ptr) string {
	if p.IsNull() {
		h.fail("null string pointer")
		return ""
	}
	return h.str(h.u32(p))
}

// putString constructs typed string storage at an uninitialized p.
func (h *Host) putString(p abi.Ptr, s string) {
	h.putU32(p, h.newString(s))
	h.putU32(p.Add(4), 0)
}

func (h *Host) wideEncoding() encoding.Encoding {
	if h.opts.WideCharSize == 2 {
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
}

func (h *Host) stringNew(enc encoding.Encoding, unit uint32) func(dst, contents abi.Ptr, length int64) {
	return func(dst, contents abi.Ptr, length int64) {
		raw := h.cstring(contents, length, unit)
		s := string(raw)
		if enc != nil {
			dec, err := enc.NewDecoder().Bytes(raw)
			if err != nil {
				h.fail("string decode: %v", err)
			}
			s = string(dec)
		} else if !utf8.Valid(raw) {
			h.fail("string decode: invalid utf-8")
		}
		h.putString(dst, s)
	}
}

// cstring reads length code units, or up to the first zero unit when length
// is negative.
func (h *Host) cstring(p abi.Ptr, length int64, unit uint32) []byte {
	if p.IsNull() {
		return nil
	}
	if length >= 0 {
		return h.read(p, uint32(length)*unit)
	}
	var out []byte
	for off := uint32(0); ; off += unit {
		c := h.read(p.Add(off), unit)
		zero := true
		for _, b := range c {
			if b != 0 {
				zero = false
				break
			}
		}
		if zero {
			return out
		}
		out = append(out, c...)
	}
}

func (h *Host) stringTo(enc encoding.Encoding, unit uint32) func(self, text abi.Ptr, maxWriteLength int64) int64 {
	return func(self, text abi.Ptr, maxWriteLength int64) int64 {
		s := h.typedString(self)
		raw := []byte(s)
		if enc != nil {
			var err error
			raw, err = enc.NewEncoder().Bytes(raw)
			if err != nil {
				h.fail("string encode: %v", err)
				raw = raw[:0]
			}
		}
		units := int64(len(raw)) / int64(unit)
		if !text.IsNull() && maxWriteLength > 0 {
			n := units
			if n > maxWriteLength {
				n = maxWriteLength
			}
			h.write(text, raw[:n*int64(unit)])
		}
		return units
	}
}

func (h *Host) installStrings(t *abi.InterfaceTable) {
	latin1 := charmap.ISO8859_1
	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf32le := utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	wide := h.wideEncoding()
	wideUnit := uint32(h.opts.WideCharSize)

	t.StringNewWithLatin1CharsAndLen = h.stringNew(latin1, 1)
	t.StringNewWithUtf8CharsAndLen = h.stringNew(nil, 1)
	t.StringNewWithUtf16CharsAndLen = h.stringNew(utf16, 2)
	t.StringNewWithUtf32CharsAndLen = h.stringNew(utf32le, 4)
	t.StringNewWithWideCharsAndLen = h.stringNew(wide, wideUnit)
	t.StringToLatin1Chars = h.stringTo(latin1, 1)
	t.StringToUtf8Chars = h.stringTo(nil, 1)
	t.StringToUtf16Chars = h.stringTo(utf16, 2)
	t.StringToUtf32Chars = h.stringTo(utf32le, 4)
	t.StringToWideChars = h.stringTo(wide, wideUnit)
	t.WideCharSize = wideUnit

	t.StringNameNewWithLatin1Chars = func(dst, contents abi.Ptr, _ bool) {
		h.stringNew(latin1, 1)(dst, contents, -1)
	}
	t.StringNameNewWithUtf8CharsAndLen = h.stringNew(nil, 1)
}

// Test helpers.

// StringName allocates StringName typed storage holding s.
func (h *Host) StringName(s string) abi.Ptr {
	p := h.alloc(abi.TypeSize(abi.VariantTypeStringName))
	h.putString(p, s)
	return p
}

// TypedString allocates String typed storage holding s.
func (h *Host) TypedString(s string) abi.Ptr {
	return h.StringName(s)
}

// ReadString reads String, StringName or NodePath typed storage.
func (h *Host) ReadString(p abi.Ptr) string {
	return h.typedString(p)
}

// FreeString destroys and frees typed string storage.
func (h *Host) FreeString(p abi.Ptr) {
	h.strRelease(h.u32(p))
	h.free(p)
}

// Strings returns the number of live string payloads.
func (h *Host) Strings() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.strings)
}

