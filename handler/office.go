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
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/poiesic/ingestor/core"
)

// officeMIME maps office signatures to the MIME types docconv dispatches on.
var officeMIME = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
}

func extractOffice(_ context.Context, in Input) (*Output, error) {
	mime, ok := officeMIME[in.Signature]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, in.Signature)
	}
	res, err := docconv.Convert(bytes.NewReader(in.Data), mime, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	title := baseTitle(in.ObjectKey)
	meta := make(map[string]string)
	for k, v := range res.Meta {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		key := strings.ToLower(k)
		if key == "title" {
			title = v
			continue
		}
		meta[key] = v
	}
	return &Output{
		Title:       title,
		Text:        collapseBlankLines(res.Body),
		ContentType: core.ContentTypeProse,
		Metadata:    meta,
	}, nil
}
