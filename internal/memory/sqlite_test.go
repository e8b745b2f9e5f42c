package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SqliteSemantic {
	t.Helper()
	store, err := OpenSqliteSemantic(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSemanticRoundTrip(t *testing.T) {
	store := openTestStore(t)

	entry := SemanticEntry{
		ID: "abc",
		Claim: Claim{
			Subject:   EntityUser,
			Predicate: "stated",
			Object:    TextValue("I prefer tea"),
			Modality:  Asserted,
		},
		Confidence:  0.95,
		StableSince: 41,
		Occurrences: 2,
	}
	require.NoError(t, store.Put(entry))

	got, err := store.GetBySubject(EntityUser)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
	assert.Equal(t, "I prefer tea", got[0].Claim.Object.String())
	assert.Equal(t, Asserted, got[0].Claim.Modality)
	assert.Equal(t, entry.StableSince, got[0].StableSince)
}

func TestSemanticUpsert(t *testing.T) {
	store := openTestStore(t)

	entry := SemanticEntry{
		ID:          "abc",
		Claim:       Claim{Subject: EntityUser, Predicate: "stated", Object: TextValue("old"), Modality: Asserted},
		Confidence:  0.91,
		Occurrences: 2,
	}
	require.NoError(t, store.Put(entry))

	entry.Claim.Object = TextValue("new")
	entry.Confidence = 0.97
	entry.Occurrences = 3
	require.NoError(t, store.Put(entry))

	got, err := store.GetBySubject(EntityUser)
	require.NoError(t, err)
	require.Len(t, got, 1, "same id must upsert, not duplicate")
	assert.Equal(t, "new", got[0].Claim.Object.String())
	assert.Equal(t, float32(0.97), got[0].Confidence)
}

func TestTopKByConfidence(t *testing.T) {
	store := openTestStore(t)

	for i, conf := range []float32{0.91, 0.99, 0.93} {
		require.NoError(t, store.Put(SemanticEntry{
			ID:         string(rune('a' + i)),
			Claim:      Claim{Subject: EntityUser, Predicate: "stated", Object: TextValue("x"), Modality: Asserted},
			Confidence: conf,
		}))
	}

	got, err := store.TopK(nil, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestTopKBySimilarity(t *testing.T) {
	store := openTestStore(t)

	tea := SemanticEntry{
		ID:         "tea",
		Claim:      Claim{Subject: EntityUser, Predicate: "stated", Object: TextValue("I prefer green tea in the morning"), Modality: Asserted},
		Confidence: 0.91,
	}
	garden := SemanticEntry{
		ID:         "garden",
		Claim:      Claim{Subject: EntityUser, Predicate: "stated", Object: TextValue("the garden needs watering on weekends"), Modality: Asserted},
		Confidence: 0.99,
	}
	require.NoError(t, store.Put(tea))
	require.NoError(t, store.Put(garden))

	got, err := store.TopK(Embed(tea.Claim.Summary()), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tea", got[0].ID, "similarity outranks raw confidence")
}

func TestTopKZero(t *testing.T) {
	store := openTestStore(t)
	got, err := store.TopK(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbedDeterministic(t *testing.T) {
	a := Embed("the garden needs watering")
	b := Embed("the garden needs watering")
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-5)

	c := Embed("completely unrelated sentence about compilers")
	assert.Less(t, CosineSimilarity(a, c), 0.9)
}
