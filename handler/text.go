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
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/poiesic/ingestor/core"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts data in the named encoding to UTF-8 with \n line endings.
// Supported encodings are utf-8, utf-16le, utf-16be, latin-1 and windows-1252.
func DecodeText(data []byte, encoding string) (string, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		out = []byte(strings.ToValidUTF8(string(bytes.TrimPrefix(data, bomUTF8)), "�"))
	case "utf-16le", "utf16le":
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case "utf-16be", "utf16be":
		out, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case "latin-1", "latin1", "iso-8859-1":
		out, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
	case "windows-1252", "cp1252":
		out, err = charmap.Windows1252.NewDecoder().Bytes(data)
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return normalizeNewlines(string(out)), nil
}

// AutoDecode guesses the encoding from a byte order mark, falling back to
// UTF-8 when valid and Windows-1252 otherwise.
func AutoDecode(data []byte) string {
	encoding := "windows-1252"
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		encoding = "utf-8"
	case bytes.HasPrefix(data, bomUTF16LE):
		encoding = "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		encoding = "utf-16be"
	case utf8.Valid(data):
		encoding = "utf-8"
	}
	text, err := DecodeText(data, encoding)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return text
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// baseTitle derives a title from an object key: the file name without extension.
func baseTitle(key string) string {
	name := path.Base(key)
	return strings.TrimSuffix(name, path.Ext(name))
}

func extractPlainText(_ context.Context, in Input) (*Output, error) {
	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        AutoDecode(in.Data),
		ContentType: core.ContentTypeProse,
	}, nil
}

func extractMarkdown(_ context.Context, in Input) (*Output, error) {
	text := AutoDecode(in.Data)
	title := baseTitle(in.ObjectKey)
	for _, line := range strings.Split(text, "\n") {
		if h, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			title = strings.TrimSpace(h)
			break
		}
	}
	return &Output{Title: title, Text: text, ContentType: core.ContentTypeProse}, nil
}

func extractCode(_ context.Context, in Input) (*Output, error) {
	return &Output{
		Title:       path.Base(in.ObjectKey),
		Text:        AutoDecode(in.Data),
		ContentType: core.ContentTypeCode,
		Metadata:    map[string]string{"language": strings.TrimPrefix(in.Signature, ".")},
	}, nil
}

var (
	plainTextSignatures = []string{".txt", ".text", ".log", "mime:text/plain"}
	markdownSignatures  = []string{".md", ".markdown", ".rst", ".adoc"}
	codeSignatures      = []string{
		".go", ".py", ".js", ".ts", ".java", ".kt", ".c", ".h", ".cc", ".cpp", ".hpp", ".cs",
		".rs", ".rb", ".php", ".sh", ".sql", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf",
	}
)
