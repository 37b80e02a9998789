package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Item is one movie of the catalog. Items are read fresh on every run and
// never written back.
type Item struct {
	Title   string
	Year    string
	Release string // release date exactly as it appears in the catalog
}

// Key identifies an item across runs: normalized title, year and release date.
type Key string

var titleFolder = cases.Lower(language.Und)

func NewKey(title, year, release string) Key {
	normalized := titleFolder.String(strings.TrimSpace(title))
	return Key(fmt.Sprintf("%s__%s__%s", normalized, strings.TrimSpace(year), strings.TrimSpace(release)))
}

func (i Item) Key() Key {
	return NewKey(i.Title, i.Year, i.Release)
}

// Columns maps catalog fields to CSV header names.
type Columns struct {
	Title   string `yaml:"title"`
	Year    string `yaml:"year"`
	Release string `yaml:"release"`
}

func DefaultColumns() Columns {
	return Columns{
		Title:   "TITRE Français",
		Year:    "ANNEE",
		Release: "DATE DE SORTIE FR",
	}
}
