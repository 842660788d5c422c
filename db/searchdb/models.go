package searchdb

import "time"

// Document is one indexed file. ID is the file's absolute path so that
// change notifications can address it directly.
type Document struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Ext     string    `json:"ext"`
	Content string    `json:"content"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type Hit struct {
	ID      string  `json:"id"`
	Path    string  `json:"path"`
	Name    string  `json:"name"`
	Ext     string  `json:"ext"`
	Score   float64 `json:"score"`
	Size    int64   `json:"size"`
	ModTime string  `json:"mod_time"`
	Snippet string  `json:"snippet,omitempty"`
	// Terms are the indexed terms the query matched.
	Terms []string `json:"terms,omitempty"`
}

type Response struct {
	Hits     []Hit         `json:"hits"`
	Total    uint64        `json:"total"`
	MaxScore float64       `json:"max_score"`
	Took     time.Duration `json:"took"`
}
