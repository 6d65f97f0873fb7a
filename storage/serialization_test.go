package storage

import (
	"testing"
	"time"

	"github.com/poiesic/admissions/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{
			name: "minimal chunk",
			chunk: &core.Chunk{
				Id:         core.ID(1),
				DocumentID: "guide-2026",
				Text:       "Early admission opens in September.",
				InsertedAt: now,
			},
		},
		{
			name: "chunk with vector and metadata",
			chunk: &core.Chunk{
				Id:          core.ID(7),
				ContentHash: core.IDFromContent("Tuition is paid per semester."),
				DocumentID:  "kaist-brochure",
				Source:      "KAIST Brochure 2026",
				Text:        "Tuition is paid per semester.",
				Vector:      []float32{0.1, -0.2, 0.3, 0.4},
				Metadata:    map[string]string{"university": "KAIST", "year": "2026"},
				InsertedAt:  now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalChunk(MarshalChunk(tt.chunk))
			require.NoError(t, err)
			assert.Equal(t, tt.chunk, decoded)
		})
	}
}

func TestMarshalChunk_ZeroTime(t *testing.T) {
	decoded, err := UnmarshalChunk(MarshalChunk(&core.Chunk{DocumentID: "d", Text: "t"}))
	require.NoError(t, err)
	assert.True(t, decoded.InsertedAt.IsZero())
}

func TestUnmarshalChunk_Truncated(t *testing.T) {
	data := MarshalChunk(&core.Chunk{
		Id:         3,
		DocumentID: "doc",
		Text:       "some text that will be cut",
		Vector:     []float32{1, 2, 3},
	})

	_, err := UnmarshalChunk(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalChunk_OversizedLength(t *testing.T) {
	data := marshal(func(c fieldCodec) {
		c.uint64(1)
		c.uint64(2)
		c.string("doc")
		c.string("source")
		c.string("text")
		c.uint64(1000) // vector length with no elements behind it
	})

	_, err := UnmarshalChunk(data)
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestMarshalUnmarshalUsageRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &core.UsageRecord{
		Identity:  core.AddressIdentity("203.0.113.9"),
		Count:     10,
		ResetDate: "2026-03-01",
		UpdatedAt: now,
	}

	decoded, err := UnmarshalUsageRecord(MarshalUsageRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestMarshalUnmarshalReport(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rep := &core.EvaluationReport{
		Id:                 "a1",
		RequestID:          "r1",
		Kind:               core.ReportRouterOutput,
		Question:           "What GPA do I need for Yonsei?",
		Digest:             "abc123",
		Format:             core.Verdict{Valid: true, Rationale: "well formed"},
		FunctionSelection:  core.Verdict{Valid: true, Rationale: "univ_search fits"},
		ParameterSoundness: core.Verdict{Valid: false, Rationale: "department missing"},
		Comment:            "mostly fine",
		CreatedAt:          now,
	}

	decoded, err := UnmarshalReport(MarshalReport(rep))
	require.NoError(t, err)
	assert.Equal(t, rep, decoded)
}
