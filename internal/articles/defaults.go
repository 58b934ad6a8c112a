package articles

import (
	_ "embed"
	"slices"

	"github.com/0x0BSoD/medhum/internal/model"
)

//go:embed defaults.json
var defaultsJSON []byte

var bundled = mustDecodeDefaults()

func mustDecodeDefaults() []model.Article {
	list, err := DecodeSnapshot(defaultsJSON)
	if err != nil {
		panic("articles: bundled defaults: " + err.Error())
	}
	return list
}

// Defaults returns a copy of the bundled collection used to seed an empty store.
func Defaults() []model.Article {
	return slices.Clone(bundled)
}
