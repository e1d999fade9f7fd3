// Package index holds the in-memory TF-IDF index of published posts and
// answers related-content queries against it.
//
// The index is a disposable read model: it is rebuilt from the post store
// at startup and kept approximately in sync through Upsert and Remove.
// Upsert maintains the IDF table approximately, using stored TF-IDF
// weights in place of the term frequencies that are not retained, and
// Remove leaves the IDF table untouched. Periodic full rebuilds bound the
// resulting drift.
package index

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tfidf"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tokenizer"
)

// Index is safe for concurrent use. Reads share the lock; Rebuild, Upsert
// and Remove hold it exclusively.
type Index struct {
	mu        sync.RWMutex
	documents []document
	idf       map[string]float64
	docCount  int
	logger    *slog.Logger

	// instance and generation make up Version. generation is bumped under
	// the write lock by every mutation.
	instance   string
	generation atomic.Uint64
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a custom logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// New returns an empty index.
func New(opts ...Option) *Index {
	ix := &Index{
		idf:      make(map[string]float64),
		logger:   slog.Default().With("component", "semantic-index"),
		instance: newInstanceID(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Rebuild replaces the whole index with vectors computed from posts
// against one shared IDF table. Readers see either the old or the new
// index.
func (ix *Index) Rebuild(posts []PostData) {
	start := time.Now()
	tfs := make([]map[string]float64, len(posts))
	for i, post := range posts {
		tfs[i] = tfidf.TermFrequency(tokenizer.Analyze(post.combinedText()))
	}
	idf := tfidf.ComputeIDF(tfs)
	documents := make([]document, len(posts))
	for i, post := range posts {
		documents[i] = document{
			postID: post.PostID,
			blogID: post.BlogID,
			vector: tfidf.Vectorize(tfs[i], idf),
		}
	}

	ix.mu.Lock()
	ix.documents = documents
	ix.idf = idf
	ix.docCount = len(documents)
	ix.generation.Add(1)
	ix.mu.Unlock()

	ix.logger.Info("semantic index rebuilt",
		"documents", len(documents),
		"terms", len(idf),
		"duration", time.Since(start),
	)
}

// Upsert adds post or replaces the document with the same PostID. The IDF
// table is recomputed from the other documents' stored weights plus the
// new term frequencies, and every other document is rescaled by the
// new/old IDF ratio of its terms.
func (ix *Index) Upsert(post PostData) {
	tf := tfidf.TermFrequency(tokenizer.Analyze(post.combinedText()))

	ix.mu.Lock()
	defer ix.mu.Unlock()

	documents := ix.documents[:0]
	replaced := false
	for _, doc := range ix.documents {
		if doc.postID == post.PostID {
			replaced = true
			continue
		}
		documents = append(documents, doc)
	}
	clear(ix.documents[len(documents):])

	maps := make([]map[string]float64, 0, len(documents)+1)
	for _, doc := range documents {
		maps = append(maps, doc.vector.Weights)
	}
	maps = append(maps, tf)
	idf := tfidf.ComputeIDF(maps)

	for i := range documents {
		documents[i].vector.Rescale(ix.idf, idf)
	}
	documents = append(documents, document{
		postID: post.PostID,
		blogID: post.BlogID,
		vector: tfidf.Vectorize(tf, idf),
	})

	ix.documents = documents
	ix.idf = idf
	ix.docCount = len(documents)
	ix.generation.Add(1)

	ix.logger.Debug("document upserted",
		"post_id", post.PostID,
		"blog_id", post.BlogID,
		"replaced", replaced,
		"terms", len(tf),
		"documents", ix.docCount,
	)
}

// Remove deletes the document with postID and reports whether it was
// present. The IDF table is left as is.
func (ix *Index) Remove(postID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	documents := ix.documents[:0]
	for _, doc := range ix.documents {
		if doc.postID != postID {
			documents = append(documents, doc)
		}
	}
	removed := len(documents) < len(ix.documents)
	clear(ix.documents[len(documents):])
	ix.documents = documents
	ix.docCount = len(documents)
	if removed {
		ix.generation.Add(1)
	}

	ix.logger.Debug("document removed",
		"post_id", postID,
		"found", removed,
		"documents", ix.docCount,
	)
	return removed
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docCount
}

// Stats returns the document count and IDF table size.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Documents: ix.docCount,
		Terms:     len(ix.idf),
	}
}

// Version identifies the current contents of this index instance. It
// changes on every Rebuild, Upsert and effective Remove, and never matches
// the version of another Index, so results tagged with it cannot outlive
// the state they were computed from.
func (ix *Index) Version() string {
	return ix.instance + "." + strconv.FormatUint(ix.generation.Load(), 10)
}

func newInstanceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
