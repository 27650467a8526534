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

package ingestion

import (
	"context"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/loader"
)

// loadProcessor commits the document to the tenant's stores.
type loadProcessor struct {
	loader  *loader.Loader
	tracker *fileTracker
}

var _ processor = (*loadProcessor)(nil)

func (p *loadProcessor) name() string              { return "load" }
func (p *loadProcessor) failState() core.FileState { return core.FileStateLoadFailed }

func (p *loadProcessor) process(ctx context.Context, u *workItem) error {
	if err := p.tracker.advance(ctx, u, core.FileStateLoading); err != nil {
		return err
	}
	if _, err := p.loader.Load(ctx, &loader.Request{
		Document:       u.doc,
		Classification: u.classification,
		Chunks:         u.chunks,
	}); err != nil {
		return err
	}
	u.file.DocID = u.doc.DocID
	return p.tracker.advance(ctx, u, core.FileStateLoaded)
}
