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
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/poiesic/ingestor/core"
)

// cellSeparator joins cells of one row in tabular text.
const cellSeparator = " | "

func extractDelimited(comma rune) func(context.Context, Input) (*Output, error) {
	return func(_ context.Context, in Input) (*Output, error) {
		r := csv.NewReader(strings.NewReader(AutoDecode(in.Data)))
		r.Comma = comma
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		var (
			b      strings.Builder
			header []string
			rows   int
		)
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if header == nil {
				header = record
			} else {
				rows++
			}
			writeRow(&b, record)
		}
		return &Output{
			Title:       baseTitle(in.ObjectKey),
			Text:        b.String(),
			ContentType: core.ContentTypeTabular,
			Metadata: map[string]string{
				"columns": strings.Join(header, ","),
				"rows":    strconv.Itoa(rows),
			},
		}, nil
	}
}

func writeRow(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteString(cellSeparator)
		}
		b.WriteString(strings.Join(strings.Fields(c), " "))
	}
	b.WriteByte('\n')
}

// xlsx parts, reduced to what text extraction needs.
type (
	xlsxSharedStrings struct {
		Items []struct {
			Text string `xml:"t"`
			Runs []struct {
				Text string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	xlsxWorksheet struct {
		Rows []struct {
			Cells []struct {
				Ref    string `xml:"r,attr"`
				Type   string `xml:"t,attr"`
				Value  string `xml:"v"`
				Inline struct {
					Text string `xml:"t"`
				} `xml:"is"`
			} `xml:"c"`
		} `xml:"sheetData>row"`
	}
)

// extractXLSX reads every worksheet of an Office Open XML spreadsheet.
// Each sheet starts with a "## <sheet>" line followed by one line per row.
func extractXLSX(_ context.Context, in Input) (*Output, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	var sheets []string
	for _, f := range zr.File {
		files[f.Name] = f
		if strings.HasPrefix(f.Name, "xl/worksheets/") && strings.HasSuffix(f.Name, ".xml") {
			sheets = append(sheets, f.Name)
		}
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no worksheets", ErrCorrupt)
	}
	sort.Slice(sheets, func(i, j int) bool { return sheetNumber(sheets[i]) < sheetNumber(sheets[j]) })

	var shared []string
	if f, ok := files["xl/sharedStrings.xml"]; ok {
		var sst xlsxSharedStrings
		if err := decodeZipXML(f, &sst); err != nil {
			return nil, err
		}
		for _, si := range sst.Items {
			text := si.Text
			for _, r := range si.Runs {
				text += r.Text
			}
			shared = append(shared, text)
		}
	}

	var (
		b    strings.Builder
		rows int
	)
	for _, name := range sheets {
		var ws xlsxWorksheet
		if err := decodeZipXML(files[name], &ws); err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "## %s\n", strings.TrimSuffix(path.Base(name), ".xml"))
		for _, row := range ws.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, c := range row.Cells {
				cells = append(cells, cellText(c.Type, c.Value, c.Inline.Text, shared))
			}
			writeRow(&b, cells)
			rows++
		}
	}

	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        b.String(),
		ContentType: core.ContentTypeTabular,
		Metadata: map[string]string{
			"sheets": strconv.Itoa(len(sheets)),
			"rows":   strconv.Itoa(rows),
		},
	}, nil
}

func cellText(typ, value, inline string, shared []string) string {
	switch typ {
	case "s":
		if i, err := strconv.Atoi(value); err == nil && i >= 0 && i < len(shared) {
			return shared[i]
		}
		return ""
	case "inlineStr":
		return inline
	case "b":
		if value == "1" {
			return "TRUE"
		}
		return "FALSE"
	}
	return value
}

func sheetNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".xml")
	n, err := strconv.Atoi(strings.TrimPrefix(base, "sheet"))
	if err != nil {
		return 1 << 30
	}
	return n
}

// maxZipPart caps how much of one archive member is decompressed.
const maxZipPart = 64 << 20

func decodeZipXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer rc.Close()
	if err := xml.NewDecoder(io.LimitReader(rc, maxZipPart)).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, f.Name, err)
	}
	return nil
}
