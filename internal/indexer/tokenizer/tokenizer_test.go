package tokenizer

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Term
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Red car", []string{"red", "car"}},
		{"punctuation", "hello, world! (again)", []string{"hello", "world", "again"}},
		{"digits", "Blade Runner 2049", []string{"blade", "runner", "2049"}},
		{"nfkc", "ＡＢＣ ﬁne", []string{"abc", "fine"}},
		{"empty", "  ...  ", []string{}},
		{"single letters kept", "a b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := terms(Tokenize(tt.in))
			if !equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenizePositionsAndOffsets(t *testing.T) {
	text := "The  Godfather, part II"
	tokens := Tokenize(text)
	if len(tokens) != 4 {
		t.Fatalf("got %d tokens", len(tokens))
	}
	for i, tok := range tokens {
		if tok.Position != i {
			t.Errorf("token %d position = %d", i, tok.Position)
		}
	}
	if got := text[tokens[1].Start:tokens[1].End]; got != "Godfather" {
		t.Errorf("offsets select %q", got)
	}
}

func TestTokenizeLongWordConsumesPosition(t *testing.T) {
	long := make([]byte, MaxWordLength+1)
	for i := range long {
		long[i] = 'x'
	}
	tokens := Tokenize("one " + string(long) + " two")
	if len(tokens) != 2 {
		t.Fatalf("got %v", terms(tokens))
	}
	if tokens[1].Position != 2 {
		t.Errorf("position after skipped word = %d, want 2", tokens[1].Position)
	}
}

func TestTokenizeCJKNgram(t *testing.T) {
	got := TokenizeWith("東京都 tokyo", Options{CJKNgram: true})
	want := []string{"東", "東京", "京", "京都", "都", "tokyo"}
	if !equal(terms(got), want) {
		t.Fatalf("got %v, want %v", terms(got), want)
	}
	if got[1].Position != got[0].Position {
		t.Error("bigram should share the position of its first character")
	}
	if got[5].Position != 3 {
		t.Errorf("tokyo position = %d, want 3", got[5].Position)
	}

	plain := Tokenize("東京都")
	if len(plain) != 1 || plain[0].Term != "東京都" {
		t.Errorf("without ngrams got %v", terms(plain))
	}
}

func TestTokenizeProlongedSoundMark(t *testing.T) {
	got := TokenizeWith("タワー game", Options{CJKNgram: true})
	want := []string{"タ", "タワ", "ワ", "ワー", "ー", "game"}
	if !equal(terms(got), want) {
		t.Fatalf("got %v, want %v", terms(got), want)
	}
	if got[5].Position != 3 {
		t.Errorf("game position = %d, want 3", got[5].Position)
	}
	if !IsCJK('ー') || !IsCJK('\u309B') || IsCJK('-') {
		t.Error("IsCJK misclassifies sound marks")
	}
}

func TestStemmer(t *testing.T) {
	s, err := NewStemmer("en")
	if err != nil {
		t.Fatal(err)
	}
	if s.Language() != "english" {
		t.Errorf("Language = %q", s.Language())
	}
	tests := map[string]string{
		"cars":    "car",
		"running": "run",
		"2049s":   "2049s",
	}
	for in, want := range tests {
		if got := s.Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}

	none, err := NewStemmer("none")
	if err != nil {
		t.Fatal(err)
	}
	if !none.IsNone() || none.Stem("cars") != "cars" {
		t.Error("none stemmer should be the identity")
	}

	if _, err := NewStemmer("klingon"); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("unknown language err = %v", err)
	}
}

func TestParseStemStrategy(t *testing.T) {
	for _, s := range []StemStrategy{StemNone, StemSome, StemAll, StemAllZ} {
		got, err := ParseStemStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStemStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStemStrategy("most"); err == nil {
		t.Error("expected error")
	}
}

func TestStopList(t *testing.T) {
	if !EnglishStopWords.IsStop("the") {
		t.Error("the should be a stop word")
	}
	if EnglishStopWords.IsStop("gangster") {
		t.Error("gangster is not a stop word")
	}
}
