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

package search

import "strings"

// Stop words in English and German, ignored for verbatim matching.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"it": true, "for": true, "not": true, "on": true, "with": true, "as": true,
	"at": true, "this": true, "by": true, "from": true, "or": true,
	"der": true, "die": true, "das": true, "und": true, "ein": true, "eine": true,
	"ist": true, "im": true, "mit": true, "von": true, "zu": true, "den": true,
}

// tokenizeAndFilter lowercases, trims punctuation and drops stop words.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}|"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}

// containsAllQueryWords reports whether every significant query word occurs in text.
func containsAllQueryWords(text, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}
	words := make(map[string]bool)
	for _, w := range tokenizeAndFilter(text) {
		words[w] = true
	}
	for _, q := range queryWords {
		if !words[q] {
			return false
		}
	}
	return true
}
