package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/admissions/core"
)

// Key prefixes for different data types
const (
	chunkPrefix     = "chunk:"
	chunkHashPrefix = "chunkhash:"
	chunkIDSeq      = "chunkseq"
	usagePrefix     = "usage:"
	auditPrefix     = "audit:"
)

// makeChunkKey generates a key for a chunk by ID.
// IDs are big-endian so prefix iteration visits chunks in insertion order.
func makeChunkKey(id core.ID) []byte {
	buf := make([]byte, len(chunkPrefix)+8)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeChunkHashKey generates the dedup index key for a chunk's content hash.
func makeChunkHashKey(hash core.ID) []byte {
	return []byte(fmt.Sprintf("%s%d", chunkHashPrefix, hash))
}

// makeUsageKey generates the key of an identity's usage record.
// Format: usage:user:<id> or usage:ip:<addr>
func makeUsageKey(id core.Identity) []byte {
	return []byte(usagePrefix + id.Key())
}

// makeAuditKey generates a composite key for an evaluation report.
// Format: prefix:timestamp:reportID
func makeAuditKey(createdAt time.Time, reportID string) []byte {
	buf := make([]byte, len(auditPrefix)+8+len(reportID))
	offset := copy(buf, auditPrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], reportID)
	return buf
}
