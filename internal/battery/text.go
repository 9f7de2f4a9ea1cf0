package battery

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

func decoderFor(b []byte, enc Encoding) *encoding.Decoder {
	switch enc {
	case EncodingUTF16LE:
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder()
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder()
	case EncodingUnknown:
		if !utf8.Valid(b) {
			return charmap.Windows1252.NewDecoder()
		}
	}
	return xunicode.UTF8.NewDecoder()
}

// DecodeText turns raw identity bytes into a clean UTF-8 string.
// Text after the first NUL is dropped, invalid sequences become U+FFFD and
// control characters are removed. It reports false when nothing is left.
func DecodeText(b []byte, enc Encoding) (string, bool) {
	decoded, err := decoderFor(b, enc).Bytes(b)
	if err != nil {
		decoded = []byte(strings.ToValidUTF8(string(b), string(utf8.RuneError)))
	}
	s := string(decoded)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	return s, s != ""
}
