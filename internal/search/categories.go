// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package search

import (
	_ "embed"
	"log/slog"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Category is one bucket of the fixed trend taxonomy.
type Category string

// The taxonomy is fixed: five content categories plus General as the
// fallback for text that matches none of them.
const (
	CategoryConsumerCulture    Category = "Consumer & Culture"
	CategoryTechnology         Category = "Technology & Innovation"
	CategoryMarketing          Category = "Marketing & Advertising"
	CategoryBusiness           Category = "Business & Industry"
	CategoryCustomerExperience Category = "Customer Experience"
	CategoryGeneral            Category = "General"
)

// Categories lists the taxonomy in canonical order, General last.
func Categories() []Category {
	return []Category{
		CategoryConsumerCulture,
		CategoryTechnology,
		CategoryMarketing,
		CategoryBusiness,
		CategoryCustomerExperience,
		CategoryGeneral,
	}
}

//go:embed categories.yaml
var categoriesYAML []byte

// taxonomyFile is the top-level structure of categories.yaml.
type taxonomyFile struct {
	Categories []taxonomyEntry `yaml:"categories"`
}

type taxonomyEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// compiledCategory holds one category's keyword patterns, compiled once.
type compiledCategory struct {
	name     Category
	keywords []*regexp.Regexp
}

var (
	taxonomyOnce sync.Once
	taxonomy     []compiledCategory
	taxonomyErr  error
)

// loadTaxonomy parses the embedded keyword tables once and compiles a
// word-boundary pattern per keyword. The tables ship inside the binary, so
// a load failure is a build defect; it is logged once and Categorize
// degrades to General.
func loadTaxonomy() ([]compiledCategory, error) {
	taxonomyOnce.Do(func() {
		var f taxonomyFile
		if err := yaml.Unmarshal(categoriesYAML, &f); err != nil {
			taxonomyErr = tserr.Wrapf(err, tserr.CodeSearchTaxonomyFailure,
				"parsing embedded category tables")
		} else {
			taxonomy, taxonomyErr = compileTaxonomy(f)
		}
		if taxonomyErr != nil {
			slog.Error("category tables unavailable, categorization degrades to General",
				"error", taxonomyErr)
		}
	})
	return taxonomy, taxonomyErr
}

func compileTaxonomy(f taxonomyFile) ([]compiledCategory, error) {
	if len(f.Categories) == 0 {
		return nil, tserr.New(tserr.CodeSearchTaxonomyFailure, "embedded category tables are empty")
	}

	known := make(map[Category]bool, len(Categories()))
	for _, c := range Categories() {
		known[c] = true
	}

	seen := make(map[Category]bool, len(f.Categories))
	compiled := make([]compiledCategory, 0, len(f.Categories))
	for _, entry := range f.Categories {
		name := Category(entry.Name)
		switch {
		case !known[name]:
			return nil, tserr.New(tserr.CodeSearchTaxonomyFailure,
				"category tables name an undeclared category",
				tserr.Field("category", entry.Name))
		case name == CategoryGeneral:
			return nil, tserr.New(tserr.CodeSearchTaxonomyFailure,
				"General is the fallback and cannot carry keywords")
		case seen[name]:
			return nil, tserr.New(tserr.CodeSearchTaxonomyFailure,
				"duplicate category in tables",
				tserr.Field("category", entry.Name))
		case len(entry.Keywords) == 0:
			return nil, tserr.New(tserr.CodeSearchTaxonomyFailure,
				"category has no keywords",
				tserr.Field("category", entry.Name))
		}
		seen[name] = true

		cat := compiledCategory{name: name, keywords: make([]*regexp.Regexp, 0, len(entry.Keywords))}
		for _, keyword := range entry.Keywords {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
			if err != nil {
				return nil, tserr.Wrapf(err, tserr.CodeSearchTaxonomyFailure,
					"compiling keyword %q for category %q", keyword, entry.Name)
			}
			cat.keywords = append(cat.keywords, re)
		}
		compiled = append(compiled, cat)
	}
	return compiled, nil
}

// Categorize assigns text to the category whose keywords score the most
// word-boundary hits. Ties keep the earlier table entry; text matching no
// keywords lands in General.
func Categorize(text string) Category {
	categories, err := loadTaxonomy()
	if err != nil {
		return CategoryGeneral
	}

	best := CategoryGeneral
	bestScore := 0
	for _, cat := range categories {
		score := 0
		for _, re := range cat.keywords {
			score += len(re.FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best = cat.name
			bestScore = score
		}
	}
	return best
}
