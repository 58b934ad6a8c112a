// Package model defines the data structures shared across medhum: the persisted Article, the chat
// messages exchanged with the assistant and the feed items used to build article drafts.
package model

import "time"

// Site categories.
const (
	CategoryLibrary = "圖書館精選書籍"
	CategoryReaders = "讀者推薦"
	CategoryFilm    = "電影時光"
	CategoryEssays  = "寫景寫心"
)

// Categories lists the site categories in navigation order.
var Categories = []string{CategoryLibrary, CategoryFilm, CategoryReaders, CategoryEssays}

// DateLayout is the calendar date format of Article.Date.
const DateLayout = "2006-01-02"

// Article is the sole persisted entity. Summary is only meaningful for CategoryFilm; an empty
// Summary is treated as absent and omitted from JSON.
type Article struct {
	ID       string `json:"id"                validate:"notblank"`
	Title    string `json:"title"             validate:"notblank"`
	Content  string `json:"content"`
	Summary  string `json:"summary,omitempty"`
	Author   string `json:"author"`
	Date     string `json:"date"              validate:"omitempty,datetime=2006-01-02"`
	Category string `json:"category"`
	ImageURL string `json:"imageUrl"`
}

// IsFilm reports whether the article belongs to the film category.
func (a Article) IsFilm() bool {
	return a.Category == CategoryFilm
}

// Chat roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// WelcomeMessageID marks the canned greeting shown by the chat widget.
const WelcomeMessageID = "welcome"

type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Item is a single entry fetched from a feed.
type Item struct {
	Title      string
	Categories []string
	Link       string
	Date       time.Time
	Text       string
	ImageURL   string
	SourceName string
}
