package secret

import "testing"

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"abc":                       "***",
		"abcdefgh":                  "a******h",
		"0123456789abcdefghijklmno": "012*********************o",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q) = %q want %q", in, got, want)
		}
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	b, _ := Generate(32)
	if a == b {
		t.Fatalf("tokens should differ")
	}
	if !Equal(a, a) || Equal(a, b) {
		t.Fatalf("Equal mismatch")
	}
}
