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

package openai

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ingestor/ai"
)

const classifierPromptTemplate = `You sort business documents into exactly one category.

Allowed categories: %s

Output ONLY valid JSON of the form:
{"category": "<one allowed category>", "confidence": <number between 0 and 1>, "rationale": "<one short sentence>"}

Rules:
- category must be copied exactly from the allowed list, in lowercase.
- Use "general" when no other category clearly fits.
- Documents may be written in English or German.
- Do not include any preamble, explanation or text outside the JSON object.`

func buildClassifierPrompt(categories []string) string {
	return fmt.Sprintf(classifierPromptTemplate, strings.Join(categories, ", "))
}

func buildClassifierInput(req ai.ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", req.Filename)
	fmt.Fprintf(&b, "Path: %s\n", req.Path)
	b.WriteString("Excerpt:\n")
	b.WriteString(scrubExcerpt(req.Excerpt))
	return b.String()
}

const codegenSystemPrompt = `You write text extraction routines for file formats in Starlark, a small Python dialect.

Write a script that defines exactly this function:

def extract(data):
    # data is the raw file content as bytes
    # return the human readable text of the document as a string

Constraints:
- Starlark has no while loops, no recursion, no exceptions, no classes and no imports. Do not use load().
- Iterate with "for i in range(n)". Index bytes with data[i], which yields an int.
- Available helpers:
    decode_text(data, encoding="utf-8")  bytes to string; encoding is one of utf-8, utf-16le, utf-16be, latin-1
    printable_runs(data, min_len=4)      list of printable text runs found in the bytes
    strip_markup(text)                   removes XML or HTML tags from a string
    u16le(data, offset)                  little-endian uint16 at offset
    u32le(data, offset)                  little-endian uint32 at offset
- Return "" if the file contains no text. Do not print anything.

Reply with the script only, without explanations.`

// sampleHexBytes bounds the hex dump included in a codegen request.
const sampleHexBytes = 512

func buildCodegenInput(req ai.CodeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Format signature: %s\n", req.Signature)
	fmt.Fprintf(&b, "Sample size: %d bytes\n\n", len(req.Sample))

	head := req.Sample
	if len(head) > sampleHexBytes {
		head = head[:sampleHexBytes]
	}
	b.WriteString("Hex dump of the first bytes:\n")
	b.WriteString(hex.Dump(head))

	if utf8.Valid(req.Sample) {
		b.WriteString("\nThe sample is valid UTF-8:\n")
		b.WriteString(string(req.Sample))
		b.WriteString("\n")
	}

	if req.Feedback != "" {
		b.WriteString("\nYour previous script was rejected:\n")
		b.WriteString(req.Feedback)
		b.WriteString("\n\nPrevious script:\n")
		b.WriteString(req.PreviousCode)
		b.WriteString("\n\nWrite a corrected script.\n")
	}
	return b.String()
}

const visionPrompt = `Transcribe all text visible in this image. Preserve reading order and line breaks.
Output only the transcribed text. If there is no text, output nothing.`
