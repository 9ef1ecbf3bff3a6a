package ivr

import (
	"math"
	"strings"

	"github.com/antzucaro/matchr"
)

// englishStopWords are excluded from term vectors so that filler words do
// not inflate menu similarity.
var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "our": true, "that": true, "the": true, "to": true, "was": true,
	"we": true, "were": true, "will": true, "with": true, "you": true,
	"your": true, "please": true,
}

// shortTokenLimit is the token count below which term-vector similarity is
// degenerate; such pairs fall back to Jaro-Winkler string similarity.
const shortTokenLimit = 3

// Similarity scores how alike two transcripts are in [0, 1]. Token-rich
// pairs use TF-IDF cosine over unigrams and bigrams; token-poor pairs fall
// back to Jaro-Winkler so one-word retry prompts still compare sensibly.
func Similarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) < shortTokenLimit || len(tb) < shortTokenLimit {
		return matchr.JaroWinkler(strings.Join(ta, " "), strings.Join(tb, " "), false)
	}
	return tfidfCosine(terms(ta), terms(tb))
}

// Jaccard computes word-set overlap: |A∩B| / |A∪B|. Retained as the
// configurable alternative to TF-IDF cosine.
func Jaccard(a, b string) float64 {
	sa := tokenSet(tokenize(a))
	sb := tokenSet(tokenize(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// tokenize lowercases, strips punctuation, and drops stop-words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
	out := fields[:0]
	for _, f := range fields {
		if englishStopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	s := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

// terms builds the unigram+bigram frequency vector of a token stream.
func terms(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens)*2)
	for i, t := range tokens {
		tf[t]++
		if i+1 < len(tokens) {
			tf[t+" "+tokens[i+1]]++
		}
	}
	return tf
}

// tfidfCosine computes cosine similarity between the two term vectors using
// smoothed IDF over the two-document corpus, so shared terms keep non-zero
// weight.
func tfidfCosine(ta, tb map[string]float64) float64 {
	idf := func(inBoth bool) float64 {
		df := 1.0
		if inBoth {
			df = 2.0
		}
		return math.Log(3.0/(1.0+df)) + 1.0
	}

	var dot, normA, normB float64
	for term, fa := range ta {
		fb, shared := tb[term]
		w := idf(shared)
		wa := fa * w
		normA += wa * wa
		if shared {
			dot += wa * (fb * w)
		}
	}
	for term, fb := range tb {
		_, shared := ta[term]
		wb := fb * idf(shared)
		normB += wb * wb
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
