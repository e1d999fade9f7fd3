// Package tfidf implements the term-weighting math behind the semantic
// index: length-normalised term frequency, smoothed inverse document
// frequency, sparse TF-IDF vectors and cosine similarity.
package tfidf

import "math"

// defaultIDF is used for terms the corpus has never seen.
const defaultIDF = 1.0

// Vector is a sparse TF-IDF weight map together with its cached L2 norm.
type Vector struct {
	Weights   map[string]float64
	Magnitude float64
}

// TermFrequency counts each term and divides by the token count. An empty
// token list yields an empty map.
func TermFrequency(tokens []string) map[string]float64 {
	counts := make(map[string]float64)
	for _, token := range tokens {
		counts[token]++
	}
	if n := float64(len(tokens)); n > 0 {
		for term := range counts {
			counts[term] /= n
		}
	}
	return counts
}

// ComputeIDF derives idf(t) = ln((N+1)/(df(t)+1)) + 1 from the key sets of
// the given per-document maps. Only keys are read, so TF-IDF maps may be
// passed in place of term-frequency maps.
func ComputeIDF(docs []map[string]float64) map[string]float64 {
	n := float64(len(docs))
	df := make(map[string]float64)
	for _, doc := range docs {
		for term := range doc {
			df[term]++
		}
	}
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((n+1)/(count+1)) + 1
	}
	return idf
}

// Vectorize weights every term by its IDF and computes the magnitude.
func Vectorize(tf map[string]float64, idf map[string]float64) Vector {
	weights := make(map[string]float64, len(tf))
	var magSq float64
	for term, freq := range tf {
		idfVal, ok := idf[term]
		if !ok {
			idfVal = defaultIDF
		}
		w := freq * idfVal
		weights[term] = w
		magSq += w * w
	}
	return Vector{Weights: weights, Magnitude: math.Sqrt(magSq)}
}

// Rescale multiplies each weight by newIDF/oldIDF for every term present in
// newIDF, then recomputes the magnitude from the rescaled weights. Terms
// missing from oldIDF are treated as having the default IDF.
func (v *Vector) Rescale(oldIDF, newIDF map[string]float64) {
	var magSq float64
	for term, w := range v.Weights {
		if newVal, ok := newIDF[term]; ok {
			oldVal, seen := oldIDF[term]
			if !seen {
				oldVal = defaultIDF
			}
			if oldVal > 0 {
				w *= newVal / oldVal
				v.Weights[term] = w
			}
		}
		magSq += w * w
	}
	v.Magnitude = math.Sqrt(magSq)
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude.
func Cosine(a, b Vector) float64 {
	if a.Magnitude == 0 || b.Magnitude == 0 {
		return 0
	}
	small, large := a.Weights, b.Weights
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for term, w := range small {
		if other, ok := large[term]; ok {
			dot += w * other
		}
	}
	return dot / (a.Magnitude * b.Magnitude)
}
