package index

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tfidf"
)

// PostData is the text of a single eligible post as supplied by the
// content layer. Tags is the raw stored value and is tokenized like any
// other field.
type PostData struct {
	PostID  string `json:"post_id"`
	BlogID  string `json:"blog_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Tags    string `json:"tags"`
	Summary string `json:"summary"`
}

// Hit is a ranked search result.
type Hit struct {
	PostID     string  `json:"post_id"`
	BlogID     string  `json:"blog_id"`
	Similarity float64 `json:"similarity"`
}

// Stats summarises the current index contents.
type Stats struct {
	Documents int `json:"documents"`
	Terms     int `json:"terms"`
}

type document struct {
	postID string
	blogID string
	vector tfidf.Vector
}

// combinedText repeats the title three times and the summary twice so that
// they outweigh body text.
func (p PostData) combinedText() string {
	return strings.Join([]string{
		p.Title, p.Title, p.Title,
		p.Summary, p.Summary,
		p.Tags,
		p.Content,
	}, " ")
}
