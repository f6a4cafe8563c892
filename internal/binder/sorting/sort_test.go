package sorting

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

func testCards(t *testing.T) (*binder.PositionMap, Details) {
	t.Helper()
	details := Details{
		"sv1-25":  {ID: "sv1-25", Name: "Pikachu", Number: "25", Rarity: "Common", Types: []string{"Lightning"}},
		"sv1-4":   {ID: "sv1-4", Name: "charmander", Number: "4", Rarity: "Common", Types: []string{"Fire"}},
		"sv1-1":   {ID: "sv1-1", Name: "Bulbasaur", Number: "1", Rarity: "Uncommon", Types: []string{"Grass"}},
		"sv1-198": {ID: "sv1-198", Name: "Professor's Research", Number: "198", Rarity: "Uncommon", Supertype: "Trainer"},
		"sv1-TG05": {ID: "sv1-TG05", Name: "Squirtle", Number: "TG05", Rarity: "Illustration Rare", Types: []string{"Water"}},
		"sv1-230": {ID: "sv1-230", Name: "Mew ex", Number: "230", Rarity: "Hyper Rare", Types: []string{"Psychic"}},
		"sv1-99":  {ID: "sv1-99", Name: "Oddity", Number: "99", Rarity: "Mystery", Types: []string{"Stellar"}},
		"sv1-50":  binder.PlaceholderDetails("sv1-50"),
	}

	m := binder.NewPositionMap()
	refs := []binder.CardRef{
		binder.NewCardRef("sv1-25", true),
		binder.NewCardRef("sv1-230", false),
		binder.NewCardRef("unknown-7", false),
		binder.NewCardRef("sv1-4", false),
		binder.NewCardRef("sv1-25", false),
		binder.NewCardRef("sv1-TG05", false),
		binder.NewCardRef("sv1-1", false),
		binder.NewCardRef("sv1-198", false),
		binder.NewCardRef("sv1-50", false),
		binder.NewCardRef("sv1-99", false),
	}
	// Sparse positions so compaction is visible.
	for i, ref := range refs {
		require.NoError(t, m.Set(i*3+1, ref))
	}
	return m, details
}

func ids(m *binder.PositionMap) []string {
	var out []string
	for _, slot := range m.Entries() {
		id := slot.Card.CardID
		if slot.Card.IsReverseHolo {
			id += "/R"
		}
		out = append(out, id)
	}
	return out
}

func TestSort_Number(t *testing.T) {
	cards, details := testCards(t)

	sorted, err := Sort(cards, binder.SortNumber, binder.Ascending, details, DefaultTypeOrder)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sv1-1", "sv1-4", "sv1-25", "sv1-25/R", "sv1-99", "sv1-198", "sv1-230", "sv1-TG05",
		"sv1-50", "unknown-7",
	}, ids(sorted))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sorted.Positions())
}

func TestSort_NameIsCaseInsensitive(t *testing.T) {
	cards, details := testCards(t)

	sorted, err := Sort(cards, binder.SortName, binder.Ascending, details, DefaultTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"sv1-1", "sv1-4", "sv1-230", "sv1-99", "sv1-25", "sv1-25/R"}, ids(sorted)[:6])
}

func TestSort_Rarity(t *testing.T) {
	cards, details := testCards(t)

	sorted, err := Sort(cards, binder.SortRarity, binder.Ascending, details, DefaultTypeOrder)
	require.NoError(t, err)
	got := ids(sorted)
	assert.Equal(t, []string{"sv1-4", "sv1-25", "sv1-25/R", "sv1-1", "sv1-198", "sv1-TG05", "sv1-230", "sv1-99"}, got[:8])
}

func TestSort_TypeUsesOrderTable(t *testing.T) {
	cards, details := testCards(t)

	sorted, err := Sort(cards, binder.SortType, binder.Ascending, details, DefaultTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"sv1-1", "sv1-4", "sv1-TG05", "sv1-25", "sv1-25/R", "sv1-230", "sv1-198", "sv1-99"}, ids(sorted)[:8])

	custom := TypeOrder{"Psychic", "Water"}
	sorted, err = Sort(cards, binder.SortType, binder.Ascending, details, custom)
	require.NoError(t, err)
	assert.Equal(t, []string{"sv1-230", "sv1-TG05"}, ids(sorted)[:2])
}

func TestSort_Idempotent(t *testing.T) {
	cards, details := testCards(t)

	for _, strategy := range []binder.SortStrategy{binder.SortNumber, binder.SortName, binder.SortRarity, binder.SortType} {
		for _, dir := range []binder.SortDirection{binder.Ascending, binder.Descending} {
			once, err := Sort(cards, strategy, dir, details, DefaultTypeOrder)
			require.NoError(t, err)
			twice, err := Sort(once, strategy, dir, details, DefaultTypeOrder)
			require.NoError(t, err)
			assert.True(t, once.Equal(twice), "%s/%s not idempotent", strategy, dir)
		}
	}
}

func TestSort_DescendingIsExactReverse(t *testing.T) {
	cards, details := testCards(t)

	for _, strategy := range []binder.SortStrategy{binder.SortNumber, binder.SortName, binder.SortRarity, binder.SortType} {
		asc, err := Sort(cards, strategy, binder.Ascending, details, DefaultTypeOrder)
		require.NoError(t, err)
		desc, err := Sort(asc, strategy, binder.Descending, details, DefaultTypeOrder)
		require.NoError(t, err)

		a, d := ids(asc), ids(desc)
		require.Len(t, d, len(a))
		for i := range a {
			assert.Equal(t, a[i], d[len(d)-1-i], "%s: position %d", strategy, i)
		}
	}
}

func TestSort_CustomIsNoop(t *testing.T) {
	cards, details := testCards(t)

	sorted, err := Sort(cards, binder.SortCustom, binder.Descending, details, DefaultTypeOrder)
	require.NoError(t, err)
	assert.True(t, cards.Equal(sorted))
	assert.Equal(t, cards.Positions(), sorted.Positions())
}

func TestSort_RejectsUnknownStrategy(t *testing.T) {
	cards, details := testCards(t)
	_, err := Sort(cards, "price", binder.Ascending, details, DefaultTypeOrder)
	assert.Error(t, err)
}

func TestSortBinder(t *testing.T) {
	cards, details := testCards(t)
	b := binder.New("Scarlet & Violet", binder.MustGrid(binder.Grid3x3))
	b.Cards = cards
	b.Settings.PageCount = 4
	b.Settings.PageOrder = binder.IdentityPageOrder(4)
	b.Settings.SortBy = binder.SortNumber

	next, err := SortBinder(b, details, DefaultTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, 4, next.Settings.PageCount)
	assert.Equal(t, 28, b.Cards.MaxPosition())
	assert.Equal(t, 9, next.Cards.MaxPosition())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw    string
		prefix string
		value  int
		ok     bool
	}{
		{"58", "", 58, true},
		{"058", "", 58, true},
		{"TG05", "TG", 5, true},
		{"SV107", "SV", 107, true},
		{"177a", "", 177, true},
		{"", "", 0, false},
		{"XY", "XY", 0, false},
	}
	for _, tt := range tests {
		n := parseNumber(tt.raw)
		assert.Equal(t, tt.prefix, n.prefix, tt.raw)
		assert.Equal(t, tt.value, n.value, tt.raw)
		assert.Equal(t, tt.ok, n.ok, tt.raw)
	}
}

type memorySettings struct {
	values map[string]interface{}
}

func (m *memorySettings) GetTyped(_ context.Context, key string, target interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return errors.New("setting not found: " + key)
	}
	*(target.(*TypeOrder)) = v.(TypeOrder).Clone()
	return nil
}

func (m *memorySettings) Set(_ context.Context, key string, value interface{}) error {
	m.values[key] = value
	return nil
}

func (m *memorySettings) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func TestTypeOrderStore(t *testing.T) {
	ctx := context.Background()
	settings := &memorySettings{values: map[string]interface{}{}}

	store := NewTypeOrderStore(settings)
	require.NoError(t, store.Load(ctx))
	assert.Equal(t, DefaultTypeOrder, store.Get())

	require.NoError(t, store.Set(ctx, TypeOrder{"Water", "Fire"}))
	assert.Error(t, store.Set(ctx, TypeOrder{"Water", "water"}))

	reloaded := NewTypeOrderStore(settings)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, TypeOrder{"Water", "Fire"}, reloaded.Get())

	// Callers get copies.
	got := reloaded.Get()
	got[0] = "Grass"
	assert.Equal(t, "Water", reloaded.Get()[0])

	require.NoError(t, reloaded.Reset(ctx))
	assert.Equal(t, DefaultTypeOrder, reloaded.Get())
	_, stored := settings.values[TypeOrderKey]
	assert.False(t, stored)
}
