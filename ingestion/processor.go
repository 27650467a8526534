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
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/handler"
	"github.com/poiesic/ingestor/storage"
)

// workItem is one file travelling through the stages. Only one stage
// worker touches an item at a time.
type workItem struct {
	run            *jobRun
	file           *core.SourceFile
	data           []byte
	doc            *core.ExtractedDocument
	classification core.Classification
	chunks         []*core.Chunk

	// failed is set once the file has failed an attempt in this job.
	failed bool
}

// processor is one pipeline stage.
type processor interface {
	name() string

	// failState is where a file goes when process fails, and where the
	// next attempt starts from.
	failState() core.FileState

	// process advances u through the stage, persisting its state changes.
	process(ctx context.Context, u *workItem) error
}

// fileTracker persists file state transitions.
type fileTracker struct {
	files  storage.SourceFileRepository
	logger *slog.Logger
}

// advance moves the file to next and saves it. The save ignores
// cancellation so a cancelled job still records where each file stopped.
func (t *fileTracker) advance(ctx context.Context, u *workItem, next core.FileState) error {
	if u.file.State != next && !u.file.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, u.file.State, next)
	}
	u.file.State = next
	return t.save(ctx, u.file)
}

func (t *fileTracker) save(ctx context.Context, file *core.SourceFile) error {
	if err := t.files.SaveSourceFile(context.WithoutCancel(ctx), file); err != nil {
		return fmt.Errorf("saving source file %s: %w", file.ObjectKey, err)
	}
	return nil
}

// isPermanent reports whether retrying err cannot help.
func isPermanent(err error) bool {
	return errors.Is(err, handler.ErrNoText) ||
		errors.Is(err, core.ErrInvalidChunk) ||
		errors.Is(err, core.ErrInvalidTransition) ||
		errors.Is(err, core.ErrInvalidTenant) ||
		errors.Is(err, storage.ErrTenantMismatch) ||
		errors.Is(err, storage.ErrDimensionMismatch)
}
