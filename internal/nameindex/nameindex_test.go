package nameindex

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(name, objectType string) Entry {
	return Entry{ObjectID: uuid.Must(uuid.NewRandom()), Name: name, ObjectType: objectType}
}

func TestPrefixSearch_ReturnsMatchingEntries(t *testing.T) {
	entries := []Entry{
		entry("Gandalf", "character"),
		entry("Galadriel", "character"),
		entry("Frodo", "character"),
		entry("Gimli", "character"),
	}
	idx, err := Build(entries)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.PrefixSearch("ga", 10)
	require.NoError(t, err)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.ElementsMatch(t, []string{"Gandalf", "Galadriel"}, names)
}

func TestPrefixSearch_IsCaseInsensitive(t *testing.T) {
	idx, err := Build([]Entry{entry("Gandalf", "character")})
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.PrefixSearch("GAN", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Gandalf", results[0].Name)
}

func TestPrefixSearch_RespectsLimit(t *testing.T) {
	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry("guard", "character"))
	}
	idx, err := Build(entries)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.PrefixSearch("gu", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestPrefixSearch_NoMatches_ReturnsEmpty(t *testing.T) {
	idx, err := Build([]Entry{entry("Gandalf", "character")})
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.PrefixSearch("zz", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPrefixSearch_HandlesNameCollisions(t *testing.T) {
	e1 := entry("Durin", "character")
	e2 := entry("Durin", "character")
	idx, err := Build([]Entry{e1, e2})
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.PrefixSearch("durin", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []uuid.UUID{results[0].ObjectID, results[1].ObjectID}
	assert.ElementsMatch(t, []uuid.UUID{e1.ObjectID, e2.ObjectID}, ids)
}

func TestIndex_SerializeLoad_RoundTrip(t *testing.T) {
	idx, err := Build([]Entry{entry("Gandalf", "character"), entry("Galadriel", "character")})
	require.NoError(t, err)
	defer idx.Close()

	fstBytes, chainsBytes, err := idx.Serialize()
	require.NoError(t, err)

	reloaded, err := Load(fstBytes, chainsBytes)
	require.NoError(t, err)
	defer reloaded.Close()

	results, err := reloaded.PrefixSearch("ga", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestPrefixUpperBound_IncrementsLastByte(t *testing.T) {
	bound, ok := prefixUpperBound([]byte("ga"))
	require.True(t, ok)
	assert.Equal(t, []byte("gb"), bound)
}

func TestPrefixUpperBound_AllFFBytes_HasNoBound(t *testing.T) {
	_, ok := prefixUpperBound([]byte{0xFF, 0xFF})
	assert.False(t, ok)
}

func TestPrefixUpperBound_EmptyPrefix_HasNoBound(t *testing.T) {
	_, ok := prefixUpperBound(nil)
	assert.False(t, ok)
}
