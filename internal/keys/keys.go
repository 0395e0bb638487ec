package keys

// Package keys centralizes Redis key construction.
// Document keys carry a "doc" segment so no id can collide with the index key.

const prefix = "genflow:"

// Doc returns the key holding one JSON document of the given kind.
func Doc(kind, id string) string { return prefix + kind + ":doc:" + id }

// Index returns the ZSET key listing every document id of a kind, scored by creation time (ms).
func Index(kind string) string { return prefix + kind + ":index" }

// Document kinds.
const (
	KindTask    = "task"
	KindProduct = "product"
)

// Kind holds all precomputed keys for a document kind to avoid repeated concatenations.
type Kind struct {
	Name   string
	Prefix string
	Index  string
}

// For returns the precomputed key set for the provided kind.
func For(kind string) Kind {
	return Kind{
		Name:   kind,
		Prefix: Doc(kind, ""),
		Index:  Index(kind),
	}
}

// Doc returns the document key for id within k.
func (k Kind) Doc(id string) string { return k.Prefix + id }
