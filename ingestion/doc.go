// Package ingestion loads pre-chunked admissions documents into the chunk store.
//
// The Loader embeds chunk text in batches on a worker pool, retrying
// embedding calls with exponential backoff, and writes the results through
// storage.ChunkRepository. Loading is idempotent: chunks whose content hash
// is already stored are skipped. Parsing source PDFs and splitting them into
// chunks happens upstream of this package.
package ingestion
