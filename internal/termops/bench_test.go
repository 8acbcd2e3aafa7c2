package termops

import (
	"strings"
	"testing"
)

var sampleQueries = map[string]string{
	"short":   "Paris",
	"address": "1600 Pennsylvania Ave NW, Washington, DC 20500",
	"long":    strings.Repeat("Rue de la Chaussée-d'Antin Saint-Germain ", 4),
}

func BenchmarkTokenize(b *testing.B) {
	for name, q := range sampleQueries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(q)))
			for i := 0; i < b.N; i++ {
				if _, err := Tokenize(q, false); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	q := sampleQueries["address"]
	b.ReportAllocs()
	b.SetBytes(int64(len(q)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = Tokenize(q, false)
		}
	})
}

func BenchmarkPermutations(b *testing.B) {
	tokens := Normalize(sampleQueries["address"])
	for _, all := range []bool{false, true} {
		name := "continuous"
		if all {
			name = "all"
		}
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Permutations(tokens, PermuteOptions{All: all})
			}
		})
	}
}

func BenchmarkGetIndexablePhrases(b *testing.B) {
	tokens := []string{"north", "main", "street"}
	freq := Freq{CountKey: 1000, "north": 50, "main": 200, "street": 900}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = GetIndexablePhrases(tokens, freq, nil)
	}
}
