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

func registerBuiltins(m map[string]Handler) {
	register := func(h Handler, sigs []string) {
		for _, sig := range sigs {
			m[sig] = h
		}
	}
	register(NewFunc("plain-text", extractPlainText), plainTextSignatures)
	register(NewFunc("markdown", extractMarkdown), markdownSignatures)
	register(NewFunc("code", extractCode), codeSignatures)
	register(NewFunc("csv", extractDelimited(',')), []string{".csv", "mime:text/csv"})
	register(NewFunc("tsv", extractDelimited('\t')), []string{".tsv", ".tab"})
	register(NewFunc("xlsx", extractXLSX), []string{".xlsx"})
	register(NewFunc("json", extractJSON), []string{".json", ".jsonl", ".ndjson", "mime:application/json"})
	register(newHTMLHandler(), []string{".html", ".htm", ".xhtml", "mime:text/html"})
	register(NewFunc("xml", extractXML), []string{".xml", "mime:text/xml"})
	register(NewFunc("pdf", extractPDF), []string{".pdf", "mime:application/pdf"})
	register(NewFunc("office", extractOffice), []string{".docx", ".pptx", ".odt"})
}
