package articles

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/medhum/internal/model"
)

// AllCategories selects every article in ByCategory.
const AllCategories = "All"

// Template values for a new article.
const (
	DefaultAuthor   = "網站管理員"
	DefaultImageURL = "https://images.unsplash.com/photo-1576091160399-112ba8d25d1d?auto=format&fit=crop&q=80&w=800"
)

// Categories returns the distinct categories of list in first-seen order.
func Categories(list []model.Article) []string {
	return lo.Uniq(lo.Map(list, func(a model.Article, _ int) string { return a.Category }))
}

func ByCategory(list []model.Article, category string) []model.Article {
	if category == "" || category == AllCategories {
		return list
	}
	return lo.Filter(list, func(a model.Article, _ int) bool { return a.Category == category })
}

// Search matches title, summary and content case-insensitively and category by substring.
func Search(list []model.Article, term string) []model.Article {
	term = strings.TrimSpace(term)
	if term == "" {
		return list
	}
	lower := strings.ToLower(term)

	return lo.Filter(list, func(a model.Article, _ int) bool {
		return strings.Contains(strings.ToLower(a.Title), lower) ||
			strings.Contains(a.Category, term) ||
			strings.Contains(strings.ToLower(a.Summary), lower) ||
			strings.Contains(strings.ToLower(a.Content), lower)
	})
}

type Section struct {
	Category string          `json:"category"`
	Articles []model.Article `json:"articles"`
}

// Highlights returns the first perCategory articles of each site category, skipping empty ones.
func Highlights(list []model.Article, perCategory int) []Section {
	sections := make([]Section, 0, len(model.Categories))
	for _, category := range model.Categories {
		matched := ByCategory(list, category)
		if len(matched) == 0 {
			continue
		}
		if perCategory > 0 && len(matched) > perCategory {
			matched = matched[:perCategory]
		}
		sections = append(sections, Section{Category: category, Articles: matched})
	}
	return sections
}

// NewDraft returns the template the admin editor starts from.
func NewDraft(now time.Time) model.Article {
	return model.Article{
		ID:       GenerateID(),
		Author:   DefaultAuthor,
		Date:     now.UTC().Format(model.DateLayout),
		Category: model.CategoryLibrary,
		ImageURL: DefaultImageURL,
	}
}

var (
	drivePathID  = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	driveQueryID = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
)

// NormalizeImageURL turns Google Drive viewer links into direct image links.
func NormalizeImageURL(url string) string {
	if !strings.Contains(url, "drive.google.com") {
		return url
	}

	m := drivePathID.FindStringSubmatch(url)
	if m == nil {
		m = driveQueryID.FindStringSubmatch(url)
	}
	if m == nil {
		return url
	}
	return "https://drive.google.com/uc?export=view&id=" + m[1]
}

func BackupFilename(now time.Time) string {
	return fmt.Sprintf("medical-humanities-backup-%s.json", now.UTC().Format(model.DateLayout))
}
