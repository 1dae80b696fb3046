package extract

import (
	"reflect"
	"strings"
	"testing"
)

func TestURLsDeduplicatesPreservingOrder(t *testing.T) {
	text := "visit http://a.com and http://a.com again, also www.b.com"
	got := URLs(text)
	want := []string{"http://a.com", "www.b.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestURLsCapsAtFive(t *testing.T) {
	text := "http://a.com http://b.com http://c.com http://d.com http://e.com http://f.com http://g.com"
	got := URLs(text)
	if len(got) != MaxCandidates {
		t.Fatalf("expected %d candidates, got %d: %v", MaxCandidates, len(got), got)
	}
	if got[0] != "http://a.com" || got[4] != "http://e.com" {
		t.Fatalf("unexpected candidate order: %v", got)
	}
}

func TestURLsStopsAtDelimiters(t *testing.T) {
	cases := map[string]string{
		"click <https://evil.example/path> now": "https://evil.example/path",
		"(see https://a.example/x)":             "https://a.example/x",
		"[link https://b.example/y]":            "https://b.example/y",
	}
	for text, want := range cases {
		got := URLs(text)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("text %q: expected [%s], got %v", text, want, got)
		}
	}
}

func TestURLsMatchesCaseInsensitiveScheme(t *testing.T) {
	got := URLs("HTTPS://Upper.Example/Path and WWW.mixed.example")
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	if !strings.EqualFold(got[0], "https://upper.example/path") {
		t.Fatalf("unexpected first candidate: %q", got[0])
	}
}

func TestURLsDeterministic(t *testing.T) {
	text := "www.a.example http://b.example www.a.example https://c.example"
	first := URLs(text)
	second := URLs(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction not deterministic: %v vs %v", first, second)
	}
}

func TestURLsEmptyForPlainText(t *testing.T) {
	if got := URLs("no links here, just prose about ftp and mailto"); len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
}
