package binder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionMap_SetEnforcesUniqueness(t *testing.T) {
	m := NewPositionMap()
	require.NoError(t, m.Set(0, NewCardRef("swsh1-1", false)))
	require.NoError(t, m.Set(1, NewCardRef("swsh1-1", true)))

	err := m.Set(5, NewCardRef("swsh1-1", false))
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
	assert.Equal(t, 2, m.Len())

	// Overwriting a slot frees the old identity.
	require.NoError(t, m.Set(0, NewCardRef("swsh1-2", false)))
	assert.False(t, m.Has(Identity{CardID: "swsh1-1"}))
	require.NoError(t, m.Set(5, NewCardRef("swsh1-1", false)))

	pos, ok := m.Find(Identity{CardID: "swsh1-1"})
	assert.True(t, ok)
	assert.Equal(t, 5, pos)
}

func TestPositionMap_RejectsMalformed(t *testing.T) {
	m := NewPositionMap()
	assert.Error(t, m.Set(0, CardRef{}))
	assert.Error(t, m.Set(0, NewCardRef(" base1-4", false)))
	assert.True(t, errors.Is(m.Set(-1, NewCardRef("base1-4", false)), ErrOutOfRange))
}

func TestPositionMap_ZeroValue(t *testing.T) {
	var m PositionMap
	require.NoError(t, m.Set(3, NewCardRef("base1-4", false)))
	assert.Equal(t, []int{3}, m.Positions())
	assert.Equal(t, 3, m.MaxPosition())
}

func TestPositionMap_JSON(t *testing.T) {
	m := NewPositionMap()
	require.NoError(t, m.Set(0, NewCardRef("base1-4", false)))
	require.NoError(t, m.Set(12, NewCardRef("base1-4", true)))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	decoded := NewPositionMap()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.True(t, m.Equal(decoded))

	assert.Error(t, json.Unmarshal([]byte(`{"first":{"cardId":"a"}}`), decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"0":{"cardId":"a"},"1":{"cardId":"a"}}`), decoded))
}

func TestPositionMap_CloneIsIndependent(t *testing.T) {
	m := NewPositionMap()
	require.NoError(t, m.Set(0, NewCardRef("base1-4", false)))

	c := m.Clone()
	c.Remove(0)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has(Identity{CardID: "base1-4"}))
}

func TestGridConfig_UnmarshalJSON(t *testing.T) {
	var g GridConfig
	require.NoError(t, json.Unmarshal([]byte(`"4x3"`), &g))
	assert.Equal(t, 12, g.Total)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"2x2","rows":2,"cols":2,"total":4}`), &g))
	assert.Equal(t, Grid2x2, g.Name)

	assert.Error(t, json.Unmarshal([]byte(`"7x7"`), &g))
	assert.Error(t, json.Unmarshal([]byte(`{"name":"3x3","rows":2,"cols":2}`), &g))
}

func TestBinder_JSONRoundTrip(t *testing.T) {
	b := New("Base Set", MustGrid(Grid3x3))
	next, _, err := Place(b, 3, NewCardRef("base1-4", false), PlaceOptions{})
	require.NoError(t, err)

	data, err := json.Marshal(next)
	require.NoError(t, err)

	var decoded Binder
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())
	assert.True(t, next.Cards.Equal(decoded.Cards))
	assert.True(t, SettingsEqual(next.Settings, decoded.Settings))
}

func TestComputeAndApplyDiff(t *testing.T) {
	base := newTestBinder(t, Grid3x3, 0, 1, 2)

	current, _, err := MoveCard(base, 2, 0, PlaceOptions{})
	require.NoError(t, err)
	current, _ = Remove(current, 1)
	current.Metadata.Name = "Renamed"

	d := ComputeDiff(base, current)
	assert.False(t, d.Empty())
	assert.NotNil(t, d.Metadata)
	assert.Nil(t, d.Settings)

	applied, err := ApplyDiff(base, d)
	require.NoError(t, err)
	assert.True(t, current.Cards.Equal(applied.Cards))
	assert.Equal(t, "Renamed", applied.Metadata.Name)

	assert.True(t, ComputeDiff(current, current).Empty())
}

func TestComputeDiff_NilBaseCarriesEverything(t *testing.T) {
	b := newTestBinder(t, Grid2x2, 0, 3)
	d := ComputeDiff(nil, b)
	assert.Len(t, d.Set, 2)
	assert.NotNil(t, d.Settings)

	applied, err := ApplyDiff(New("blank", MustGrid(Grid2x2)), d)
	require.NoError(t, err)
	assert.True(t, b.Cards.Equal(applied.Cards))
}

func TestApplyDiff_DuplicateFails(t *testing.T) {
	b := newTestBinder(t, Grid3x3, 0)
	d := Diff{Set: map[int]CardRef{4: NewCardRef("base1-0", false)}}

	_, err := ApplyDiff(b, d)
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
}
