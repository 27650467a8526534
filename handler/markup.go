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

package handler

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/poiesic/ingestor/core"
)

// htmlHandler renders HTML pages as Markdown so headings and tables
// survive into the chunker.
type htmlHandler struct {
	md *converter.Converter
}

func newHTMLHandler() *Func {
	h := &htmlHandler{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	return NewFunc("html", h.extract)
}

// boilerplate is removed before conversion.
const boilerplate = "script, style, noscript, nav, header, footer, iframe, form"

func (h *htmlHandler) extract(_ context.Context, in Input) (*Output, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(AutoDecode(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = baseTitle(in.ObjectKey)
	}

	meta := make(map[string]string)
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr("name", ""))
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			switch name {
			case "author", "description", "keywords":
				meta[name] = content
			}
		}
	})
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		meta["language"] = lang
	}

	doc.Find(boilerplate).Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	fragment, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	text, err := h.md.ConvertString(fragment)
	if err != nil {
		// Markdown conversion is cosmetic; plain text keeps the content.
		text = body.Text()
	}
	return &Output{
		Title:       title,
		Text:        collapseBlankLines(text),
		ContentType: core.ContentTypeProse,
		Metadata:    meta,
	}, nil
}

// StripMarkup removes every tag from s and unescapes entities.
func StripMarkup(s string) string {
	return collapseBlankLines(html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s)))
}

func extractXML(_ context.Context, in Input) (*Output, error) {
	raw := AutoDecode(in.Data)
	if !strings.Contains(raw, "<") {
		return nil, fmt.Errorf("%w: no markup", ErrCorrupt)
	}
	// Line breaks between elements keep adjacent values apart once tags are gone.
	raw = strings.ReplaceAll(raw, "><", ">\n<")
	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        StripMarkup(raw),
		ContentType: core.ContentTypeProse,
	}, nil
}

// collapseBlankLines trims every line and squeezes runs of empty lines to one.
func collapseBlankLines(s string) string {
	var b bytes.Buffer
	blank := true
	for _, line := range strings.Split(normalizeNewlines(s), "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank {
				b.WriteByte('\n')
			}
			blank = true
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		blank = false
	}
	return strings.TrimRight(b.String(), "\n")
}
