package ivr

import (
	"reflect"
	"testing"
)

func TestExtractDTMF(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single tag", "I'll press one for you. <dtmf>1</dtmf>", []string{"1"}},
		{"multiple tags", "<dtmf>1</dtmf> then <dtmf>2w3</dtmf>", []string{"1", "2W3"}},
		{"case insensitive", "<DTMF>4a</DTMF>", []string{"4A"}},
		{"star and pound", "<dtmf>*0#</dtmf>", []string{"*0#"}},
		{"no tag", "For sales, press 1.", nil},
		{"malformed", "<dtmf>12", nil},
		{"invalid digit excluded", "<dtmf>1x2</dtmf>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDTMF(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractDTMF(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStripDTMF(t *testing.T) {
	got := StripDTMF("Navigating the menu now. <dtmf>1w2</dtmf>")
	want := "Navigating the menu now."
	if got != want {
		t.Errorf("StripDTMF = %q, want %q", got, want)
	}
}

func TestValidCharset(t *testing.T) {
	valid := []string{"1", "123", "*#", "abcd", "ABCD", "1w2", "w1"}
	for _, s := range valid {
		if !ValidCharset(s) {
			t.Errorf("ValidCharset(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "1x", "12 3", "1,2", "e"}
	for _, s := range invalid {
		if ValidCharset(s) {
			t.Errorf("ValidCharset(%q) = true, want false", s)
		}
	}
}

func TestHasTone(t *testing.T) {
	if HasTone("www") {
		t.Error("HasTone(pause-only) = true, want false")
	}
	if !HasTone("w1w") {
		t.Error("HasTone(w1w) = false, want true")
	}
}
