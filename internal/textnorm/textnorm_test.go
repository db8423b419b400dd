package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases latin", in: "Hello World", want: "hello world"},
		{name: "drops punctuation", in: "hello, world!", want: "hello world"},
		{name: "keeps digits", in: "chapter 12", want: "chapter 12"},
		{name: "strips arabic diacritics", in: "بِسْمِ", want: "بسم"},
		{name: "folds alif hamza above", in: "أحمد", want: "احمد"},
		{name: "folds alif hamza below", in: "إلى", want: "الي"},
		{name: "folds alif madda", in: "آمن", want: "امن"},
		{name: "folds alif wasla", in: "ٱلله", want: "الله"},
		{name: "folds taa marbuta", in: "رحمة", want: "رحمه"},
		{name: "folds alif maqsura", in: "موسى", want: "موسي"},
		{name: "folds waw hamza", in: "مؤمن", want: "مومن"},
		{name: "folds yaa hamza", in: "سائل", want: "سايل"},
		{name: "drops standalone hamza", in: "سماء", want: "سما"},
		{name: "drops tatweel", in: "بـسـم", want: "بسم"},
		{name: "folds decomposed hamza carrier", in: "ا\u0654حمد", want: "احمد"},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Normalize(tc.in)
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := New()
	inputs := []string{
		"Hello, World!",
		"بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ",
		"أَحْمَد",
		"chapter 12",
		"",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestKey(t *testing.T) {
	n := New()

	tests := []struct {
		in   string
		want string
	}{
		{in: "word!", want: "word"},
		{in: "UPPER", want: "upper"},
		{in: "بِسْمِ", want: "بسم"},
		{in: "---", want: ""},
		{in: "a b", want: "ab"},
	}
	for _, tc := range tests {
		got := n.Key(tc.in)
		if got != tc.want {
			t.Errorf("Key(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWithFolds(t *testing.T) {
	n := New(WithFolds(map[rune]rune{'x': 'y'}))
	if got := n.Normalize("box"); got != "boy" {
		t.Errorf("custom fold: got %q, want %q", got, "boy")
	}
	// The default Arabic table is replaced, not merged: hamza carriers
	// survive mark stripping and only the table may collapse them.
	if got := n.Normalize("أحمد"); got != "أحمد" {
		t.Errorf("default folds should be gone: got %q", got)
	}

	empty := New(WithFolds(map[rune]rune{}))
	if got := empty.Normalize("أحمد"); got != "أحمد" {
		t.Errorf("empty table should disable folding: got %q", got)
	}
	if got := empty.Normalize("بِسْمِ"); got != "بسم" {
		t.Errorf("diacritic stripping should not depend on the table: got %q", got)
	}
}

func TestIsAnnotation(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "plain word", in: "بسم", want: false},
		{name: "latin word", in: "hello", want: false},
		{name: "digits only", in: "123", want: true},
		{name: "arabic-indic digits", in: "١٢٣", want: true},
		{name: "square brackets", in: "[سجدة]", want: true},
		{name: "parentheses", in: "(note)", want: true},
		{name: "guillemets", in: "«note»", want: true},
		{name: "ornate verse marker", in: "﴿٧﴾", want: true},
		{name: "ornate verse marker reversed", in: "﴾٧﴿", want: true},
		{name: "punctuation only", in: "***", want: true},
		{name: "empty", in: "", want: true},
		{name: "whitespace only", in: "   ", want: true},
		{name: "word with digit suffix", in: "word7", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.IsAnnotation(tc.in)
			if got != tc.want {
				t.Errorf("IsAnnotation(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
