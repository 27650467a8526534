// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classify

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/poiesic/ingestor/core"
)

// Keyword weights: a hit in the file name or path is stronger evidence
// than a hit in the body.
const (
	keyWeight  = 3
	textWeight = 1

	// saturation is the winning score at which confidence stops growing.
	saturation = 4

	// minSubstring is the shortest keyword also matched inside compound words.
	minSubstring = 5
)

// DefaultKeywords are the English and German rule keywords per category.
var DefaultKeywords = map[core.Category][]string{
	core.CategoryTax: {
		"tax", "taxes", "vat", "irs", "1099", "w2", "withholding", "deduction",
		"steuer", "steuern", "mwst", "ust", "finanzamt", "steuerbescheid", "lohnsteuer",
	},
	core.CategoryLegal: {
		"contract", "agreement", "nda", "lawsuit", "court", "clause", "liability", "gdpr", "legal", "terms",
		"vertrag", "vereinbarung", "klage", "gericht", "haftung", "datenschutz", "agb", "rechtlich", "kündigung",
	},
	core.CategoryProduct: {
		"product", "spec", "specification", "datasheet", "manual", "roadmap", "release", "feature", "firmware",
		"produkt", "handbuch", "datenblatt", "bedienungsanleitung", "spezifikation", "funktion",
	},
	core.CategoryHR: {
		"employee", "payroll", "hiring", "onboarding", "resume", "cv", "vacation", "benefits", "personnel", "hr",
		"mitarbeiter", "personal", "gehalt", "urlaub", "bewerbung", "lebenslauf", "arbeitszeugnis",
	},
	core.CategoryFinance: {
		"invoice", "budget", "revenue", "balance", "ledger", "forecast", "expense", "receipt", "bank", "finance",
		"rechnung", "bilanz", "umsatz", "haushalt", "ausgaben", "quittung", "buchhaltung", "finanzen",
	},
}

// RuleClassifier scores categories by keyword hits in the object key and
// a bounded sample of the text.
type RuleClassifier struct {
	keywords    map[core.Category][]string
	order       []core.Category
	sampleBytes int
}

var _ Classifier = (*RuleClassifier)(nil)

// NewRuleClassifier creates a rule stage for the configured categories.
// Categories without default keywords never match.
func NewRuleClassifier(config *Config) *RuleClassifier {
	r := &RuleClassifier{
		keywords:    make(map[core.Category][]string),
		sampleBytes: config.SampleBytes,
	}
	for _, cat := range config.Categories {
		if kws, ok := DefaultKeywords[cat]; ok {
			r.keywords[cat] = kws
			r.order = append(r.order, cat)
		}
	}
	return r
}

// WithKeywords adds keywords for a category.
func (r *RuleClassifier) WithKeywords(cat core.Category, keywords ...string) *RuleClassifier {
	if _, ok := r.keywords[cat]; !ok {
		r.order = append(r.order, cat)
	}
	for _, kw := range keywords {
		r.keywords[cat] = append(r.keywords[cat], strings.ToLower(kw))
	}
	return r
}

func (r *RuleClassifier) Classify(ctx context.Context, in Input) (*core.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sample := in.Text
	if len(sample) > r.sampleBytes {
		sample = sample[:r.sampleBytes]
	}
	keyTokens := tokenize(in.ObjectKey)
	textTokens := tokenize(sample)

	var (
		best      core.Category
		bestScore int
		total     int
		hits      []string
	)
	// Ties go to the category listed first.
	for _, cat := range r.order {
		score := 0
		for _, kw := range r.keywords[cat] {
			if n := matches(keyTokens, kw); n > 0 {
				score += keyWeight
				hits = append(hits, kw)
			}
			if n := matches(textTokens, kw); n > 0 {
				score += textWeight * min(n, 3)
			}
		}
		total += score
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	if bestScore == 0 {
		return &core.Classification{Method: core.MethodRule, Rationale: "no keyword matched"}, nil
	}

	confidence := float64(bestScore) / float64(total) * min(1, float64(bestScore)/saturation)
	return &core.Classification{
		Category:   best,
		Confidence: confidence,
		Method:     core.MethodRule,
		Rationale:  fmt.Sprintf("score %d of %d, key hits %v", bestScore, total, hits),
	}, nil
}

// matches counts tokens equal to kw, or containing it when kw is long
// enough to be a compound word part.
func matches(tokens []string, kw string) int {
	n := 0
	for _, t := range tokens {
		if t == kw || (len(kw) >= minSubstring && strings.Contains(t, kw)) {
			n++
		}
	}
	return n
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func splitKey(key string) (filename, dir string) {
	dir, filename = path.Split(key)
	return filename, strings.TrimSuffix(dir, "/")
}
