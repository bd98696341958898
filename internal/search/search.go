package search

import "time"

// MessageRecord is the data indexed per chat message.
type MessageRecord struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	UserName  string    `json:"userName"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query describes a message search request, always scoped to one room.
type Query struct {
	Room  string
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over messages.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
