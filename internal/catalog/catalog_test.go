package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadRosters(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err, "empty roster")

	_, err = New([]Hero{{ID: 0, Name: "Nil", Role: "tank"}})
	assert.Error(t, err, "id 0 is reserved")

	_, err = New([]Hero{{ID: 3, Name: "A", Role: "mage"}, {ID: 3, Name: "B", Role: "tank"}})
	assert.Error(t, err, "duplicate id")
}

func TestHeroes_SortedByID(t *testing.T) {
	cat, err := New([]Hero{
		{ID: 9, Name: "Isolde", Role: "mage"},
		{ID: 2, Name: "Briala", Role: "support"},
		{ID: 5, Name: "Edrin", Role: "marksman"},
	})
	require.NoError(t, err)

	heroes := cat.Heroes()
	require.Len(t, heroes, 3)
	assert.Equal(t, 2, heroes[0].ID)
	assert.Equal(t, 5, heroes[1].ID)
	assert.Equal(t, 9, heroes[2].ID)

	assert.True(t, cat.Exists(5))
	assert.False(t, cat.Exists(4))
}

func TestLowestUnused(t *testing.T) {
	cat, err := New(Defaults)
	require.NoError(t, err)

	id, ok := cat.LowestUnused(nil)
	require.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok = cat.LowestUnused(map[int]bool{1: true, 2: true, 4: true})
	require.True(t, ok)
	assert.Equal(t, 3, id)

	all := map[int]bool{}
	for _, h := range cat.Heroes() {
		all[h.ID] = true
	}
	_, ok = cat.LowestUnused(all)
	assert.False(t, ok, "roster exhausted")
}
