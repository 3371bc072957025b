package archive

import (
	"testing"
	"unicode/utf8"
)

func TestDecodeMarkerExtraction(t *testing.T) {
	blob := append([]byte("\x00\x01\x02NSString\x05\x10"), []byte("Hello from iMessage\x00\x00\x00")...)
	if got := Decode(blob); got != "Hello from iMessage" {
		t.Fatalf("Decode=%q want %q", got, "Hello from iMessage")
	}
}

func TestDecodeMarkerImmediatelyFollowedByText(t *testing.T) {
	blob := []byte("\x01NSDictionaryMeet at noon?\x00junk")
	if got := Decode(blob); got != "Meet at noon?" {
		t.Fatalf("Decode=%q want %q", got, "Meet at noon?")
	}
}

func TestDecodeFallbackLongestRun(t *testing.T) {
	blob := []byte("\x01\x02\x03This is the message text\x00\x01\x02short\x00")
	if got := Decode(blob); got != "This is the message text" {
		t.Fatalf("Decode=%q want %q", got, "This is the message text")
	}
}

func TestDecodeFiltersStructuralTags(t *testing.T) {
	// No marker match, so the fallback runs; the longest printable run is a
	// structural tag and must lose to the real text.
	blob := []byte("\x01\x02\x03streamtyped\x00\x00NSMutableAttributedString\x00\x01Real text here\x00")
	if got := Decode(blob); got != "Real text here" {
		t.Fatalf("Decode=%q want %q", got, "Real text here")
	}
}

func TestDecodeNeverReturnsDenylistedTag(t *testing.T) {
	blobs := map[string][]byte{
		"bare tag":       []byte("\x01\x02streamtyped\x00\x03"),
		"space-padded":   []byte("\x01 NSString\x00\x00"),
		"padded on both": []byte("\x03NSDictionary \x00"),
	}
	for name, blob := range blobs {
		if got := Decode(blob); got != "" {
			t.Fatalf("%s: Decode=%q want empty", name, got)
		}
	}
}

func TestDecodeWithDenylistExtra(t *testing.T) {
	blob := []byte("\x01\x02NSTextTable\x00\x03hi\x00")
	if got := DecodeWithDenylist(blob, []string{"NSTextTable"}); got != "hi" {
		t.Fatalf("DecodeWithDenylist=%q want %q", got, "hi")
	}
}

func TestDecodeNeverPanicsOnArbitraryInput(t *testing.T) {
	full := make([]byte, 256)
	for i := range full {
		full[i] = byte(i)
	}
	blobs := [][]byte{nil, {}, full, {0xFF, 0xFE, 0xC0}, {0x00}}
	for _, blob := range blobs {
		got := Decode(blob)
		if !utf8.ValidString(got) {
			t.Fatalf("Decode(%v) produced invalid UTF-8: %q", blob, got)
		}
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	if got := Decode(nil); got != "" {
		t.Fatalf("Decode(nil)=%q want empty", got)
	}
	if got := Decode([]byte{}); got != "" {
		t.Fatalf("Decode(empty)=%q want empty", got)
	}
}
