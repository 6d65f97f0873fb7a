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

package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/admissions/core"
)

// fieldCodec is implemented by the sizing pass and the writing pass so each
// record layout is declared once.
type fieldCodec interface {
	uint64(v uint64)
	int64(v int64)
	string(v string)
	bool(v bool)
	float32(v float32)
}

type sizer struct{ n int }

func (s *sizer) uint64(v uint64)   { s.n += varint.Uint64.Size(v) }
func (s *sizer) int64(v int64)     { s.n += varint.Int64.Size(v) }
func (s *sizer) string(v string)   { s.n += ord.String.Size(v) }
func (s *sizer) bool(v bool)       { s.n += ord.Bool.Size(v) }
func (s *sizer) float32(v float32) { s.n += varint.Uint32.Size(math.Float32bits(v)) }

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64)   { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) int64(v int64)     { w.n += varint.Int64.Marshal(v, w.bs[w.n:]) }
func (w *writer) string(v string)   { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) bool(v bool)       { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) float32(v float32) { w.n += varint.Uint32.Marshal(math.Float32bits(v), w.bs[w.n:]) }

type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) float32() float32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return math.Float32frombits(v)
}

// length reads a collection length and rejects values the remaining input
// cannot possibly hold.
func (r *reader) length() int {
	l := r.uint64()
	if r.err == nil && l > uint64(len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return 0
	}
	return int(l)
}

func (r *reader) done(what string) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, r.err)
	}
	return nil
}

func encodeTime(c fieldCodec, t time.Time) {
	if t.IsZero() {
		c.int64(0)
		return
	}
	c.int64(t.UnixMicro())
}

func decodeTime(r *reader) time.Time {
	us := r.int64()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func marshal(encode func(fieldCodec)) []byte {
	var s sizer
	encode(&s)
	w := &writer{bs: make([]byte, s.n)}
	encode(w)
	return w.bs
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return marshal(func(c fieldCodec) { c.uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	r := &reader{bs: data}
	id := core.ID(r.uint64())
	return id, r.done("id")
}

func encodeChunk(c fieldCodec, chunk *core.Chunk) {
	c.uint64(uint64(chunk.Id))
	c.uint64(uint64(chunk.ContentHash))
	c.string(chunk.DocumentID)
	c.string(chunk.Source)
	c.string(chunk.Text)
	c.uint64(uint64(len(chunk.Vector)))
	for _, f := range chunk.Vector {
		c.float32(f)
	}
	keys := make([]string, 0, len(chunk.Metadata))
	for k := range chunk.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	c.uint64(uint64(len(keys)))
	for _, k := range keys {
		c.string(k)
		c.string(chunk.Metadata[k])
	}
	encodeTime(c, chunk.InsertedAt)
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	return marshal(func(c fieldCodec) { encodeChunk(c, chunk) })
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := &reader{bs: data}
	chunk := &core.Chunk{
		Id:          core.ID(r.uint64()),
		ContentHash: core.ID(r.uint64()),
		DocumentID:  r.string(),
		Source:      r.string(),
		Text:        r.string(),
	}
	if n := r.length(); n > 0 {
		chunk.Vector = make([]float32, n)
		for i := range chunk.Vector {
			chunk.Vector[i] = r.float32()
		}
	}
	if n := r.length(); n > 0 {
		chunk.Metadata = make(map[string]string, n)
		for range n {
			k := r.string()
			chunk.Metadata[k] = r.string()
		}
	}
	chunk.InsertedAt = decodeTime(r)
	if err := r.done("chunk"); err != nil {
		return nil, err
	}
	return chunk, nil
}

func encodeUsage(c fieldCodec, rec *core.UsageRecord) {
	c.uint64(uint64(rec.Identity.Kind))
	c.string(rec.Identity.Value)
	c.int64(int64(rec.Count))
	c.string(rec.ResetDate)
	encodeTime(c, rec.UpdatedAt)
}

// MarshalUsageRecord serializes a UsageRecord to bytes.
func MarshalUsageRecord(rec *core.UsageRecord) []byte {
	return marshal(func(c fieldCodec) { encodeUsage(c, rec) })
}

// UnmarshalUsageRecord deserializes a UsageRecord from bytes.
func UnmarshalUsageRecord(data []byte) (*core.UsageRecord, error) {
	r := &reader{bs: data}
	rec := &core.UsageRecord{
		Identity: core.Identity{
			Kind:  core.IdentityKind(r.uint64()),
			Value: r.string(),
		},
		Count:     int(r.int64()),
		ResetDate: r.string(),
	}
	rec.UpdatedAt = decodeTime(r)
	if err := r.done("usage record"); err != nil {
		return nil, err
	}
	return rec, nil
}

func encodeVerdict(c fieldCodec, v core.Verdict) {
	c.bool(v.Valid)
	c.string(v.Rationale)
}

func decodeVerdict(r *reader) core.Verdict {
	return core.Verdict{Valid: r.bool(), Rationale: r.string()}
}

func encodeReport(c fieldCodec, rep *core.EvaluationReport) {
	c.string(rep.Id)
	c.string(rep.RequestID)
	c.uint64(uint64(rep.Kind))
	c.string(rep.Question)
	c.string(rep.Digest)
	encodeVerdict(c, rep.Format)
	encodeVerdict(c, rep.FunctionSelection)
	encodeVerdict(c, rep.ParameterSoundness)
	c.string(rep.Comment)
	c.bool(rep.Failed)
	encodeTime(c, rep.CreatedAt)
}

// MarshalReport serializes an EvaluationReport to bytes.
func MarshalReport(rep *core.EvaluationReport) []byte {
	return marshal(func(c fieldCodec) { encodeReport(c, rep) })
}

// UnmarshalReport deserializes an EvaluationReport from bytes.
func UnmarshalReport(data []byte) (*core.EvaluationReport, error) {
	r := &reader{bs: data}
	rep := &core.EvaluationReport{
		Id:        r.string(),
		RequestID: r.string(),
		Kind:      core.ReportKind(r.uint64()),
		Question:  r.string(),
		Digest:    r.string(),
	}
	rep.Format = decodeVerdict(r)
	rep.FunctionSelection = decodeVerdict(r)
	rep.ParameterSoundness = decodeVerdict(r)
	rep.Comment = r.string()
	rep.Failed = r.bool()
	rep.CreatedAt = decodeTime(r)
	if err := r.done("evaluation report"); err != nil {
		return nil, err
	}
	return rep, nil
}
