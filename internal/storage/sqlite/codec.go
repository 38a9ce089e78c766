package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/memora/pkg/types"
)

// unitColumns is the column list scanned by scanUnit. Queries alias
// memory_units as m.
const unitColumns = `m.id, m.agent_id, m.document_id, m.content, m.context, m.fact_type,
	m.event_date, m.embedding, m.metadata, m.status, m.created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUnit reads one memory unit row selected with unitColumns, optionally
// followed by extra destinations.
func scanUnit(row rowScanner, extra ...any) (*types.MemoryUnit, error) {
	var (
		u         types.MemoryUnit
		factType  string
		status    string
		eventDate int64
		createdAt int64
		embedding []byte
		metadata  string
	)
	dest := []any{&u.ID, &u.AgentID, &u.DocumentID, &u.Content, &u.Context, &factType,
		&eventDate, &embedding, &metadata, &status, &createdAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	u.FactType = types.FactType(factType)
	u.Status = types.UnitStatus(status)
	u.EventDate = time.UnixMilli(eventDate).UTC()
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.Embedding = decodeVector(embedding)

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &u, nil
}

// encodeVector serializes an embedding as little-endian float32 values.
// Returns nil for an empty vector so the column stays NULL.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func encodeAliases(aliases []string) (string, error) {
	if aliases == nil {
		aliases = []string{}
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return "", fmt.Errorf("encode aliases: %w", err)
	}
	return string(b), nil
}

func decodeAliases(s string) ([]string, error) {
	var aliases []string
	if s == "" {
		return aliases, nil
	}
	if err := json.Unmarshal([]byte(s), &aliases); err != nil {
		return nil, fmt.Errorf("decode aliases: %w", err)
	}
	return aliases, nil
}
