// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package search_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trendscout-dev/trendscout/internal/search"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want search.Category
	}{
		{
			name: "technology outweighs marketing",
			text: "AI-powered marketing automation is transforming how brands engage with customers",
			want: search.CategoryTechnology,
		},
		{
			name: "consumer culture",
			text: "Gen Z consumers are prioritizing sustainability and authentic brand values",
			want: search.CategoryConsumerCulture,
		},
		{
			name: "tie keeps the earlier category",
			// digital transformation + cloud (technology) against digital
			// transformation + enterprise (business): equal scores.
			text: "Digital transformation initiatives are driving enterprise cloud adoption",
			want: search.CategoryTechnology,
		},
		{
			name: "customer experience",
			text: "Omnichannel customer experience strategies improve retention rates by 30%",
			want: search.CategoryCustomerExperience,
		},
		{
			name: "repeated hits count",
			text: "blockchain blockchain blockchain versus one marketing mention",
			want: search.CategoryTechnology,
		},
		{
			name: "no keyword lands in general",
			text: "The quarterly weather was pleasant and the office plants thrived",
			want: search.CategoryGeneral,
		},
		{
			name: "keywords match whole words only",
			text: "The maintainer praised the hardware scaffold",
			want: search.CategoryGeneral,
		},
		{
			name: "empty text",
			text: "",
			want: search.CategoryGeneral,
		},
		{
			name: "case insensitive",
			text: "MARKETING CAMPAIGN BRANDING",
			want: search.CategoryMarketing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, search.Categorize(tt.text))
		})
	}
}

func TestCategorize_LongText(t *testing.T) {
	text := strings.Repeat("Retail investment and enterprise strategy drive revenue growth. ", 40)
	assert.Equal(t, search.CategoryBusiness, search.Categorize(text))
}

func TestCategories(t *testing.T) {
	got := search.Categories()

	assert.Len(t, got, 6)
	assert.Equal(t, search.CategoryConsumerCulture, got[0])
	assert.Equal(t, search.CategoryGeneral, got[5])

	seen := make(map[search.Category]bool, len(got))
	for _, c := range got {
		assert.False(t, seen[c], "duplicate category %q", c)
		seen[c] = true
	}
}
