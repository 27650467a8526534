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

package badger

import "github.com/poiesic/ingestor/storage"

// Repositories bundles the control-plane repositories that share one backend.
type Repositories struct {
	Backend     *Backend
	SourceFiles storage.SourceFileRepository
	Jobs        storage.JobRepository
	Handlers    storage.HandlerRepository
	DeadLetters storage.DeadLetterRepository
}

// OpenRepositories opens a backend at path and creates every control-plane
// repository on it.
func OpenRepositories(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	files, err := NewSourceFileRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	jobs, err := NewJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	handlers, err := NewHandlerRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	deadLetters, err := NewDeadLetterRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:     backend,
		SourceFiles: files,
		Jobs:        jobs,
		Handlers:    handlers,
		DeadLetters: deadLetters,
	}, nil
}

// Close closes the repositories and then the backend.
func (r *Repositories) Close() error {
	r.DeadLetters.Close()
	r.Handlers.Close()
	r.Jobs.Close()
	r.SourceFiles.Close()
	return r.Backend.Close()
}
