package vectorstore

import "time"

// MemoryType enumerates the three kinds of rows that carry a vector
// record. The store refuses any value outside this enum at its boundary.
type MemoryType string

const (
	Event      MemoryType = "event"
	Entity     MemoryType = "entity"
	Reflection MemoryType = "reflection"
)

var validMemoryTypes = map[MemoryType]bool{Event: true, Entity: true, Reflection: true}

// IsValidMemoryType reports whether t is one of the recognized values.
func IsValidMemoryType(t MemoryType) bool {
	return validMemoryTypes[t]
}

// Record is a single vector row: one per event, entity, or reflection.
type Record struct {
	MemoryID   string
	MemoryType MemoryType
	Vector     []float32
	Content    string
	CreatedAt  time.Time
}

// SearchHit is a Record augmented with its L2 distance from the query
// vector. Distance is not normalized here; the Retrieval Engine maps it
// to a similarity score.
type SearchHit struct {
	Record
	Distance float64
}

// IDRecord is the minimal (id, type) projection used by repair scans,
// which need to enumerate every stored vector without paying to decode
// its vector bytes.
type IDRecord struct {
	MemoryID   string
	MemoryType MemoryType
}
