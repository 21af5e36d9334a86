package githubtree

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText attempts to interpret raw bytes as text. It tries strict UTF-8
// first, then BOM-marked UTF-8 and UTF-16, then a NUL-density heuristic for
// BOM-less UTF-16. ok is false when the content looks binary.
func DecodeText(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}

	if bytes.HasPrefix(raw, bomUTF8) {
		body := raw[len(bomUTF8):]
		if utf8.Valid(body) && !bytes.ContainsRune(body, 0) {
			return string(body), true
		}
		return "", false
	}
	if bytes.HasPrefix(raw, bomUTF16LE) {
		return decodeUTF16(raw, unicode.LittleEndian)
	}
	if bytes.HasPrefix(raw, bomUTF16BE) {
		return decodeUTF16(raw, unicode.BigEndian)
	}

	if utf8.Valid(raw) && !bytes.ContainsRune(raw, 0) {
		return string(raw), true
	}

	// BOM-less UTF-16 shows up as roughly every other byte NUL.
	if nulDensity(raw) > 0.3 {
		if text, ok := decodeUTF16(raw, unicode.LittleEndian); ok {
			return text, true
		}
		return decodeUTF16(raw, unicode.BigEndian)
	}
	return "", false
}

func decodeUTF16(raw []byte, endianness unicode.Endianness) (string, bool) {
	dec := unicode.UTF16(endianness, unicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", false
	}
	text := string(out)
	if strings.ContainsRune(text, 0) || strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}
	return text, true
}

func nulDensity(raw []byte) float64 {
	n := 0
	for _, b := range raw {
		if b == 0 {
			n++
		}
	}
	return float64(n) / float64(len(raw))
}
