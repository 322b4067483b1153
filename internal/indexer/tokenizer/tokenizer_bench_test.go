package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Michael Corleone returns from the war to find his family caught in a
        struggle between the old ways and the new. As the heads of the five families
        gather in New York, a rival proposes a deal in narcotics that Vito refuses,
        setting off a chain of betrayals that will make his youngest son the next Don.`,
	"long": strings.Repeat(`In the distant reaches of the galaxy a band of rebels gathers
        around a stolen set of plans. Their only hope is a farm boy who dreams of
        the stars, an old hermit with a forgotten past and a smuggler with debts to
        settle. Together they must reach the hidden base before the empire's station
        completes its search. `, 20),
	"cjk": "東京の夜に二人は出会う。Lost in Translation 迷失東京",
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeNgrams(b *testing.B) {
	text := sampleTexts["cjk"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for b.Loop() {
		TokenizeWith(text, Options{CJKNgram: true})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Tokenize(text)
		}
	})
}

func BenchmarkStem(b *testing.B) {
	s, err := NewStemmer("english")
	if err != nil {
		b.Fatal(err)
	}
	words := []string{
		"running", "gangsters", "searching", "betrayals",
		"families", "normalization", "efficiently",
		"processing", "translation", "rebellious",
	}
	b.ReportAllocs()
	for b.Loop() {
		for _, w := range words {
			s.Stem(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	base := "corleone family gangsters new york betrayal "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				Tokenize(text)
			}
		})
	}
}
