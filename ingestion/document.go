package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/admissions/core"
)

// Document is one pre-chunked piece of an admissions document.
type Document struct {
	DocumentID string            `json:"document_id"`
	Source     string            `json:"source"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// chunk converts d to an unembedded chunk with its content hash set.
func (d Document) chunk() *core.Chunk {
	docID := strings.TrimSpace(d.DocumentID)
	text := strings.TrimSpace(d.Text)
	return &core.Chunk{
		ContentHash: core.IDFromContent(docID + "\x00" + text),
		DocumentID:  docID,
		Source:      strings.TrimSpace(d.Source),
		Text:        text,
		Metadata:    d.Metadata,
	}
}

// ReadDocuments decodes JSON lines. Blank lines are skipped; a malformed
// line fails with its line number.
func ReadDocuments(r io.Reader) ([]Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
