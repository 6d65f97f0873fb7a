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

// Package storage provides the storage abstraction layer for the admissions pipeline.
//
// This package defines repository interfaces that decouple storage implementation
// from pipeline logic, so the chunk store, the usage-quota table and the audit
// log can live in different backends (BadgerDB, SQLite).
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the interfaces defined here:
//
//	chunks, err := badger.NewChunkRepository(backend)  // returns storage.ChunkRepository
//	usage, err := sqlite.NewUsageRepository(path)      // returns storage.UsageRepository
//
// Internal constructors (newChunkRepository, etc.) may return concrete types since
// they're only used within the implementation package.
//
// # Repositories
//
//   - ChunkRepository: ingested document chunks and vector similarity search
//   - UsageRepository: per-identity daily usage counters (get/upsert)
//   - AuditRepository: evaluation reports written by the auditor
//
// The Usage Governor is the only writer of UsageRepository. The pipeline treats
// ChunkRepository as read-only; only the loader adds chunks.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
