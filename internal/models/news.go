package models

// News is a news article as stored in the relational News table and in the
// search index. JSON names follow the document layout already present in the index.
type News struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ShortLink string `json:"shortLink"`
	Time      string `json:"time"`
	Category  string `json:"category"`
	NewsID    string `json:"newsId"`
	Body      string `json:"body"`
}

// NewsPatch carries a partial update. Nil fields are omitted from the
// request and keep their indexed value.
type NewsPatch struct {
	Title     *string `json:"title,omitempty"`
	ShortLink *string `json:"shortLink,omitempty"`
	Time      *string `json:"time,omitempty"`
	Category  *string `json:"category,omitempty"`
	NewsID    *string `json:"newsId,omitempty"`
	Body      *string `json:"body,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p NewsPatch) Empty() bool {
	return p.Title == nil && p.ShortLink == nil && p.Time == nil &&
		p.Category == nil && p.NewsID == nil && p.Body == nil
}
