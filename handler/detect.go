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
	"net/http"
	"path"
	"strings"
)

// magic maps leading bytes to a signature for files without an extension.
var magic = []struct {
	prefix    []byte
	signature string
}{
	{[]byte("%PDF-"), ".pdf"},
	{[]byte("\x89PNG\r\n\x1a\n"), ".png"},
	{[]byte("\xff\xd8\xff"), ".jpg"},
	{[]byte("GIF87a"), ".gif"},
	{[]byte("GIF89a"), ".gif"},
	{[]byte("II*\x00"), ".tiff"},
	{[]byte("MM\x00*"), ".tiff"},
}

// Detect returns the format signature of an object: its lowercased
// extension when it has one, a signature derived from magic bytes, or
// "mime:<type>" from content sniffing.
func Detect(key string, data []byte) string {
	if ext := strings.ToLower(path.Ext(key)); ext != "" && ext != "." && !strings.ContainsAny(ext, " \t") {
		return ext
	}
	for _, m := range magic {
		if bytes.HasPrefix(data, m.prefix) {
			return m.signature
		}
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "mime:" + strings.TrimSpace(mime)
}
