// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package langtag

import "testing"

func TestNormalizeLanguageCode(t *testing.T) {
	cases := map[string]string{
		"en": "eng",
		"EN": "eng",
		" fr ": "fre",
		"xx": "xx", // unrecognized passes through
	}
	for in, want := range cases {
		if got := NormalizeLanguageCode(in); got != want {
			t.Errorf("NormalizeLanguageCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeLanguageCodeISO1(t *testing.T) {
	if got := NormalizeLanguageCodeISO1("eng"); got != "en" {
		t.Errorf("got %q, want en", got)
	}
	if got := NormalizeLanguageCodeISO1("en"); got != "en" {
		t.Errorf("got %q, want en", got)
	}
	if got := NormalizeLanguageCodeISO1("zzz"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("en", "eng") {
		t.Error("expected en == eng")
	}
	if !Equal("EN", " en ") {
		t.Error("expected case/space-insensitive equality")
	}
	if Equal("en", "fr") {
		t.Error("expected en != fr")
	}
}

func TestIsWellFormed(t *testing.T) {
	valid := []string{"en", "fr", "pt-BR", "zh-Hans"}
	for _, v := range valid {
		if !IsWellFormed(v) {
			t.Errorf("IsWellFormed(%q) = false, want true", v)
		}
	}
	invalid := []string{"123", "!!", "toolongsubtag"}
	for _, v := range invalid {
		if IsWellFormed(v) {
			t.Errorf("IsWellFormed(%q) = true, want false", v)
		}
	}
}
