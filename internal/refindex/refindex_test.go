package refindex

import (
	"testing"
	"unicode/utf8"

	"github.com/mushafapp/recite/internal/textnorm"
)

func TestBuild(t *testing.T) {
	n := textnorm.New()

	t.Run("offsets are cumulative", func(t *testing.T) {
		ref := Build("aa bbb c", n)
		if ref.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", ref.Len())
		}
		wantOffsets := []int{0, 3, 7}
		for i, want := range wantOffsets {
			if got := ref.Words[i].Offset; got != want {
				t.Errorf("Words[%d].Offset = %d, want %d", i, got, want)
			}
		}
		if ref.TotalLen != 8 {
			t.Errorf("TotalLen = %d, want 8", ref.TotalLen)
		}
	})

	t.Run("offsets count runes not bytes", func(t *testing.T) {
		ref := Build("بسم الله", n)
		if got := ref.Words[1].Offset; got != 4 {
			t.Errorf("Words[1].Offset = %d, want 4", got)
		}
		if want := 4 + utf8.RuneCountInString("الله"); ref.TotalLen != want {
			t.Errorf("TotalLen = %d, want %d", ref.TotalLen, want)
		}
	})

	t.Run("offsets strictly increase", func(t *testing.T) {
		ref := Build("قل هو الله أحد ﴿١﴾ الله الصمد", n)
		for i := 1; i < ref.Len(); i++ {
			if ref.Words[i].Offset <= ref.Words[i-1].Offset {
				t.Fatalf("Words[%d].Offset = %d not greater than Words[%d].Offset = %d",
					i, ref.Words[i].Offset, i-1, ref.Words[i-1].Offset)
			}
		}
	})

	t.Run("annotations flagged", func(t *testing.T) {
		ref := Build("الله ﴿١﴾ الصمد", n)
		want := []bool{false, true, false}
		for i, w := range want {
			if ref.Words[i].Annotation != w {
				t.Errorf("Words[%d].Annotation = %v, want %v", i, ref.Words[i].Annotation, w)
			}
		}
	})

	t.Run("empty text", func(t *testing.T) {
		ref := Build("", n)
		if ref.Len() != 0 {
			t.Errorf("Len() = %d, want 0", ref.Len())
		}
		if ref.TotalLen != 0 {
			t.Errorf("TotalLen = %d, want 0", ref.TotalLen)
		}
	})
}

func TestWordEnd(t *testing.T) {
	n := textnorm.New()
	ref := Build("aa bbb c", n)
	wantEnds := []int{2, 6, 8}
	for i, want := range wantEnds {
		if got := ref.WordEnd(i); got != want {
			t.Errorf("WordEnd(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestLastWordBefore(t *testing.T) {
	n := textnorm.New()
	ref := Build("aa bbb c", n)

	tests := []struct {
		offset int
		want   int
	}{
		{offset: 0, want: -1},
		{offset: 1, want: -1},
		{offset: 2, want: 0},
		{offset: 3, want: 0},
		{offset: 6, want: 1},
		{offset: 8, want: 2},
		{offset: 100, want: 2},
	}
	for _, tc := range tests {
		if got := ref.LastWordBefore(tc.offset); got != tc.want {
			t.Errorf("LastWordBefore(%d) = %d, want %d", tc.offset, got, tc.want)
		}
	}
}

func TestWordContaining(t *testing.T) {
	n := textnorm.New()
	ref := Build("aa bbb c", n)

	tests := []struct {
		offset int
		want   int
	}{
		{offset: 0, want: 0},
		{offset: 2, want: 0},
		{offset: 3, want: 1},
		{offset: 6, want: 1},
		{offset: 7, want: 2},
		{offset: 100, want: 2},
	}
	for _, tc := range tests {
		if got := ref.WordContaining(tc.offset); got != tc.want {
			t.Errorf("WordContaining(%d) = %d, want %d", tc.offset, got, tc.want)
		}
	}

	empty := Build("", n)
	if got := empty.WordContaining(0); got != -1 {
		t.Errorf("WordContaining on empty text = %d, want -1", got)
	}
}

func TestNextReadable(t *testing.T) {
	n := textnorm.New()
	ref := Build("الله ﴿١﴾ الصمد ﴿٢﴾", n)

	if got := ref.NextReadable(-1); got != 0 {
		t.Errorf("NextReadable(-1) = %d, want 0", got)
	}
	if got := ref.NextReadable(0); got != 2 {
		t.Errorf("NextReadable(0) = %d, want 2", got)
	}
	if got := ref.NextReadable(2); got != -1 {
		t.Errorf("NextReadable(2) = %d, want -1", got)
	}
}
