// Package archive extracts readable message text from attributedBody blobs.
//
// When the plain-text column of chat.db is empty the message body lives in
// attributedBody, an NSKeyedArchiver/streamtyped serialized object with no
// published schema. Decoding is best effort: an ordered list of independent
// strategies, first success wins, empty string when nothing reliable is found.
package archive

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// markers are the archive type tags that precede the message string in
// streamtyped payloads.
var markers = [][]byte{
	[]byte("NSString"),
	[]byte("NSDictionary"),
}

// DefaultDenylist lists structural tag strings that appear as printable runs
// inside the archive but are never message content. The store format grows new
// tags across OS versions; callers can extend the set via DecodeWithDenylist.
var DefaultDenylist = []string{
	"NSString", "NSDictionary", "NSMutableString",
	"NSObject", "NSAttributedString", "NSMutableAttributedString",
	"streamtyped", "NSValue", "NSNumber",
}

// Decode extracts message text from blob using DefaultDenylist.
func Decode(blob []byte) string {
	return DecodeWithDenylist(blob, nil)
}

// DecodeWithDenylist extracts message text from blob, treating extra entries
// as additional structural tags. Safe on arbitrary bytes; a denylisted tag is
// never returned verbatim, even when it is the only candidate found.
func DecodeWithDenylist(blob []byte, extra []string) string {
	if len(blob) == 0 {
		return ""
	}

	deny := make(map[string]struct{}, len(DefaultDenylist)+len(extra))
	for _, tag := range DefaultDenylist {
		deny[tag] = struct{}{}
	}
	for _, tag := range extra {
		deny[tag] = struct{}{}
	}

	if text := scanMarkers(blob, deny); text != "" {
		return text
	}
	return longestPrintableRun(blob, deny)
}

// scanMarkers looks for a type-tag marker and takes the text that follows it:
// skip leading non-printable bytes, then run to the first NUL.
func scanMarkers(blob []byte, deny map[string]struct{}) string {
	for _, marker := range markers {
		idx := bytes.Index(blob, marker)
		if idx == -1 {
			continue
		}

		after := blob[idx+len(marker):]
		start := 0
		for start < len(after) {
			b := after[start]
			if (b >= 0x20 && b < 0x7F) || b >= 0xC0 {
				break
			}
			start++
		}
		if start == len(after) {
			continue
		}

		candidate := after[start:]
		if end := bytes.IndexByte(candidate, 0x00); end > 0 {
			candidate = candidate[:end]
		}

		text := stripControl(strings.ToValidUTF8(string(candidate), "�"))
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) > 1 && !denied(text, deny) {
			return text
		}
	}
	return ""
}

// longestPrintableRun decodes the whole blob permissively and returns the
// longest run of two-or-more printable runes that is not a structural tag.
func longestPrintableRun(blob []byte, deny map[string]struct{}) string {
	decoded := strings.ToValidUTF8(string(blob), "�")

	best := ""
	bestLen := 0
	var run []rune

	// Trim before the length and denylist checks: a run like " NSString" is
	// still the structural tag, not message text.
	flush := func() {
		s := strings.TrimSpace(string(run))
		run = run[:0]
		n := utf8.RuneCountInString(s)
		if n < 2 || n <= bestLen || denied(s, deny) {
			return
		}
		best = s
		bestLen = n
	}

	for _, r := range decoded {
		if printable(r) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()

	return best
}

func printable(r rune) bool {
	return (r >= 0x20 && r <= 0x7E) || (r >= 0xA0 && r <= 0xFFFF)
}

func denied(s string, deny map[string]struct{}) bool {
	_, ok := deny[s]
	return ok
}

// stripControl removes control characters and the Unicode replacement
// character left behind by permissive decoding. Tabs and newlines survive.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == '�':
			return -1
		}
		return r
	}, s)
}
