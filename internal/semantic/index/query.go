package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tfidf"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tokenizer"
)

// noiseFloor is the similarity a hit must exceed to be returned.
const noiseFloor = 0.01

// Search ranks every document against query and returns at most limit
// hits, best first. Queries with no indexable terms return no hits.
func (ix *Index) Search(query string, limit int) []Hit {
	return ix.searchWhere(query, limit, func(*document) bool { return true })
}

// SearchBlog is Search restricted to documents of a single blog.
func (ix *Index) SearchBlog(blogID, query string, limit int) []Hit {
	return ix.searchWhere(query, limit, func(d *document) bool {
		return d.blogID == blogID
	})
}

// FindSimilar ranks the other documents of blogID by similarity to the
// stored vector of postID. An unknown postID returns no hits.
func (ix *Index) FindSimilar(postID, blogID string, limit int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var source *document
	for i := range ix.documents {
		if ix.documents[i].postID == postID {
			source = &ix.documents[i]
			break
		}
	}
	if source == nil {
		return []Hit{}
	}

	hits := make([]Hit, 0)
	for i := range ix.documents {
		doc := &ix.documents[i]
		if doc.blogID != blogID || doc.postID == postID {
			continue
		}
		if sim := tfidf.Cosine(source.vector, doc.vector); sim > noiseFloor {
			hits = append(hits, Hit{PostID: doc.postID, BlogID: doc.blogID, Similarity: sim})
		}
	}
	return rank(hits, limit)
}

func (ix *Index) searchWhere(query string, limit int, match func(*document) bool) []Hit {
	tokens := tokenizer.Analyze(query)
	if len(tokens) == 0 {
		return []Hit{}
	}
	tf := tfidf.TermFrequency(tokens)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	q := tfidf.Vectorize(tf, ix.idf)
	hits := make([]Hit, 0)
	for i := range ix.documents {
		doc := &ix.documents[i]
		if !match(doc) {
			continue
		}
		if sim := tfidf.Cosine(q, doc.vector); sim > noiseFloor {
			hits = append(hits, Hit{PostID: doc.postID, BlogID: doc.blogID, Similarity: sim})
		}
	}
	return rank(hits, limit)
}

// rank sorts hits by descending similarity, keeping index order for ties,
// and truncates to limit.
func rank(hits []Hit, limit int) []Hit {
	if limit <= 0 {
		return []Hit{}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
