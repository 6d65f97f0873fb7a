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

import "github.com/poiesic/admissions/storage"

// Repositories groups the BadgerDB-backed repositories sharing one backend.
type Repositories struct {
	Backend *Backend
	Chunks  storage.ChunkRepository
	Usage   storage.UsageRepository
	Audit   storage.AuditRepository
}

// Close releases the repositories and then the backend.
func (r *Repositories) Close() error {
	if r.Chunks != nil {
		r.Chunks.Close()
	}
	return r.Backend.Close()
}

// OpenRepositories opens a backend at path and creates every repository on it.
// An empty path opens an in-memory database.
func OpenRepositories(path string) (*Repositories, error) {
	backend, err := OpenBackend(path, path == "")
	if err != nil {
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend: backend,
		Chunks:  chunks,
		Usage:   NewUsageRepository(backend),
		Audit:   NewAuditRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("")
}
