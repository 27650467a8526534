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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/poiesic/ingestor/core"
)

// extractJSON flattens JSON (or newline delimited JSON) into one
// "path: value" line per scalar. Object keys are emitted in sorted order.
func extractJSON(_ context.Context, in Input) (*Output, error) {
	dec := json.NewDecoder(bytes.NewReader(in.Data))
	dec.UseNumber()

	var (
		b      strings.Builder
		values int
	)
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		root := ""
		if values > 0 || dec.More() {
			root = "[" + strconv.Itoa(values) + "]"
		}
		flattenJSON(&b, root, v)
		values++
	}
	return &Output{
		Title:       baseTitle(in.ObjectKey),
		Text:        b.String(),
		ContentType: core.ContentTypeTabular,
		Metadata:    map[string]string{"values": strconv.Itoa(values)},
	}, nil
}

func flattenJSON(b *strings.Builder, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenJSON(b, p, t[k])
		}
	case []any:
		for i, e := range t {
			flattenJSON(b, prefix+"["+strconv.Itoa(i)+"]", e)
		}
	default:
		if prefix == "" {
			prefix = "value"
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(jsonScalar(t))
		b.WriteByte('\n')
	}
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strings.Join(strings.Fields(t), " ")
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}
