// Package memory implements the three-tier memory pipeline: the observer
// that synthesizes claims from cognition, the working-set candidate buffer,
// the consolidator that promotes candidates through episodic into semantic
// storage, and the stores themselves. The pipeline runs as the third
// reactor sidecar and owns its stores exclusively.
package memory

import (
	"fmt"
	"hash/fnv"
	"math"

	"nexuscortex/internal/kernel"
)

// EntityId identifies the subject of a claim.
type EntityId string

const (
	EntitySystem EntityId = "system"
	EntityUser   EntityId = "user"
)

// TopicEntity builds an entity id for a named topic.
func TopicEntity(name string) EntityId {
	return EntityId("topic:" + name)
}

// Modality records how a claim was acquired.
type Modality int

const (
	// Asserted: explicitly stated by the user.
	Asserted Modality = iota
	// Inferred: deduced by the system.
	Inferred
	// Observed: noticed from behavior or perception.
	Observed
)

func (m Modality) String() string {
	switch m {
	case Asserted:
		return "asserted"
	case Inferred:
		return "inferred"
	case Observed:
		return "observed"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// ClaimValue is the object of a claim.
type ClaimValue struct {
	Text   string
	Number float64
	Bool   bool
	IsText bool
	IsNum  bool
	IsBool bool
}

func TextValue(s string) ClaimValue   { return ClaimValue{Text: s, IsText: true} }
func NumberValue(n float64) ClaimValue { return ClaimValue{Number: n, IsNum: true} }
func BoolValue(b bool) ClaimValue     { return ClaimValue{Bool: b, IsBool: true} }

func (v ClaimValue) String() string {
	switch {
	case v.IsText:
		return v.Text
	case v.IsNum:
		return fmt.Sprintf("%g", v.Number)
	case v.IsBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return ""
	}
}

// Claim is the atomic unit of memory.
type Claim struct {
	Subject   EntityId
	Predicate string
	Object    ClaimValue
	Modality  Modality
	FirstSeen kernel.Tick
	Intensity float32
}

// KeyHash is a stable hash over (subject, predicate): candidates about the
// same subject and relation reinforce each other regardless of object.
func (c Claim) KeyHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.Subject))
	h.Write([]byte{0})
	h.Write([]byte(c.Predicate))
	return h.Sum64()
}

// Summary is a compact content line for snapshots and UI hydration.
func (c Claim) Summary() string {
	return fmt.Sprintf("%s %s %s", c.Subject, c.Predicate, c.Object)
}

// Candidate is a working-set entry: a claim plus accumulated evidence.
type Candidate struct {
	Claim       Claim
	Intensity   float32
	FirstSeen   kernel.Tick
	LastSeen    kernel.Tick
	Occurrences uint32
}

// EpisodicEntry is a session-scale memory.
type EpisodicEntry struct {
	Claim       Claim
	Confidence  float32
	FirstSeen   kernel.Tick
	LastSeen    kernel.Tick
	Occurrences uint32
}

// SemanticEntry is a durable memory.
type SemanticEntry struct {
	ID          string
	Claim       Claim
	Confidence  float32
	StableSince kernel.Tick
	Occurrences uint32
}

// EpisodicStore is the in-memory session tier.
type EpisodicStore interface {
	Put(entry EpisodicEntry)
	GetBySubject(subject EntityId) []EpisodicEntry
	GetByKey(key uint64) (EpisodicEntry, bool)
	All() []EpisodicEntry
	Delete(key uint64)
}

// SemanticStore is the durable tier. TopK with a nil query ranks by
// confidence; with a query embedding it ranks by cosine similarity.
type SemanticStore interface {
	Put(entry SemanticEntry) error
	GetBySubject(subject EntityId) ([]SemanticEntry, error)
	TopK(queryEmbedding []float32, k int) ([]SemanticEntry, error)
	Close() error
}

// embeddingDim is the dimensionality of the deterministic feature-hash
// embedding used for TopK ranking.
const embeddingDim = 64

// Embed maps text to a deterministic unit-normalized feature-hash vector.
// A stand-in for a real embedding engine: stable, cheap, dependency-free.
func Embed(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for i := 0; i+2 < len(text); i++ {
		h := fnv.New32a()
		h.Write([]byte(text[i : i+3]))
		vec[h.Sum32()%embeddingDim]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	inv := 1 / sqrt32(norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// CosineSimilarity over equal-length vectors; 0 for mismatched or zero input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(dot) / (float64(sqrt32(na)) * float64(sqrt32(nb)))
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
