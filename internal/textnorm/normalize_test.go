package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Prova Pericial", "prova pericial"},
		{"accents", "Citação", "citacao"},
		{"punctuation", "PROVA-PERICIAL!!", "provapericial"},
		{"whitespace collapse", "  laudo   de\tprova  ", "laudo de prova"},
		{"digits kept", "Art. 523 CPC", "art 523 cpc"},
		{"empty", "", ""},
		{"only punctuation", "---!!!", ""},
		{"mixed accents", "Subsídio Médico", "subsidio medico"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	a := Normalize("Prova Pericial")
	b := Normalize("prova pericial")
	c := Normalize("PROVA PERICIAL!!")
	if a != b || b != c {
		t.Errorf("expected equivalent forms, got %q, %q, %q", a, b, c)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Prova Pericial",
		"Citação",
		"  mixed   Case  WITH-punct!  ",
		"já normalizado",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0032782-96.2023.8.03.0001", "00327829620238030001"},
		{"00327829620238030001", "00327829620238030001"},
		{"abc", ""},
		{"", ""},
		{" 12 34 ", "1234"},
	}
	for _, tt := range tests {
		if got := DigitsOnly(tt.in); got != tt.want {
			t.Errorf("DigitsOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
