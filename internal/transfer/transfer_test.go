package transfer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
)

func sampleBinder(t *testing.T) *binder.Binder {
	t.Helper()
	b := binder.New("Base Set", binder.MustGrid(binder.Grid3x3))
	b.Metadata.Description = "First edition"
	b.Settings.PageCount = 3
	b.Settings.PageOrder = []int{0, 2, 1, 3}
	b.Settings.SortBy = binder.SortNumber
	b.Version = 7
	for pos, id := range map[int]string{0: "base1-4", 4: "base1-58", 20: "base1-2"} {
		require.NoError(t, b.Cards.Set(pos, binder.NewCardRef(id, false)))
	}
	require.NoError(t, b.Cards.Set(5, binder.NewCardRef("base1-58", true)))
	return b
}

func TestExportImport_RoundTrip(t *testing.T) {
	b := sampleBinder(t)
	h := history.New(10)
	h.Record("Open", b.Snapshot())
	h.Record("Sort", b.Snapshot())
	clip := clipboard.New()
	require.True(t, clip.Add(binder.NewCardRef("base1-1", false)))

	data, err := Export(b, ExportOptions{Clipboard: clip.Items(), History: h})
	require.NoError(t, err)

	got, err := Import(data, ImportOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, b.ID, got.Binder.ID, "import mints a fresh id by default")
	assert.Equal(t, int64(0), got.Binder.Version)
	assert.True(t, b.Cards.Equal(got.Binder.Cards))
	assert.Equal(t, b.Settings.GridSize, got.Binder.Settings.GridSize)
	assert.Equal(t, 3, got.Binder.Settings.PageCount)
	assert.Equal(t, []int{0, 2, 1, 3}, got.Binder.Settings.PageOrder)
	assert.Equal(t, "First edition", got.Binder.Metadata.Description)
	require.Len(t, got.Clipboard, 1)
	require.NotNil(t, got.History)
	assert.Equal(t, 2, got.History.Len())
	assert.True(t, got.History.CanUndo())
	require.NoError(t, got.Binder.Validate())
}

func TestImport_KeepID(t *testing.T) {
	b := sampleBinder(t)
	data, err := Export(b, ExportOptions{})
	require.NoError(t, err)

	got, err := Import(data, ImportOptions{KeepID: true})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.Binder.ID)
	assert.Nil(t, got.History)
}

func TestImport_ReportsEveryProblem(t *testing.T) {
	doc := `{
		"format": "binder-companion/v1",
		"binder": {
			"id": "b1",
			"metadata": {"name": "Broken"},
			"settings": {"gridSize": "7x7", "pageCount": 2, "pageOrder": [1, 0, 2], "sortBy": "price"},
			"cards": {
				"zero": {"cardId": "sv1-1"},
				"0": {"cardId": "sv1-2"},
				"3": {"cardId": "sv1-2"},
				"4": {"cardId": " sv1-9"}
			}
		},
		"clipboard": [{"card": {"cardId": "sv1-7"}}, {"card": {"cardId": "sv1-7"}}]
	}`

	_, err := Import([]byte(doc), ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, binder.ErrInvalidImportFormat)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 7)

	msg := err.Error()
	for _, want := range []string{"gridSize", "pageOrder", "sortBy", `"zero"`, "duplicates position 0", "whitespace", "listed twice"} {
		assert.Contains(t, msg, want)
	}
}

func TestImport_Rejects(t *testing.T) {
	valid, err := Export(sampleBinder(t), ExportOptions{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   string
		limits binder.Limits
	}{
		{name: "not json", data: "binder"},
		{name: "wrong format", data: strings.Replace(string(valid), Format, "other/v9", 1)},
		{name: "no binder", data: `{"format":"binder-companion/v1"}`},
		{name: "page limit", data: string(valid), limits: binder.Limits{MaxPages: 2}},
		{name: "card limit", data: string(valid), limits: binder.Limits{MaxCards: 3}},
		{name: "negative position", data: `{"format":"binder-companion/v1","binder":{"id":"b","settings":{"gridSize":"3x3","pageCount":1},"cards":{"-1":{"cardId":"x"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import([]byte(tt.data), ImportOptions{Limits: tt.limits})
			assert.ErrorIs(t, err, binder.ErrInvalidImportFormat)
		})
	}
}

func TestImport_DefaultsMissingSettings(t *testing.T) {
	doc := `{"format":"binder-companion/v1","binder":{"id":"b","settings":{"gridSize":"4x4","pageCount":2},"cards":{"17":{"cardId":"sv2-1"}}}}`

	got, err := Import([]byte(doc), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got.Binder.Settings.PageOrder)
	assert.Equal(t, binder.SortCustom, got.Binder.Settings.SortBy)
	assert.Equal(t, binder.Ascending, got.Binder.Settings.SortDirection)
	assert.Equal(t, "Imported binder", got.Binder.Metadata.Name)
	assert.Equal(t, 16, got.Binder.Settings.GridSize.Total)
}

func TestImport_BadHistory(t *testing.T) {
	b := sampleBinder(t)
	h := history.New(5)
	h.Record("Open", b.Snapshot())
	data, err := Export(b, ExportOptions{History: h})
	require.NoError(t, err)

	var doc, journal map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NoError(t, json.Unmarshal(doc["history"], &journal))
	journal["cursor"] = json.RawMessage("4")
	doc["history"], err = json.Marshal(journal)
	require.NoError(t, err)
	broken, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = Import(broken, ImportOptions{})
	assert.ErrorIs(t, err, binder.ErrInvalidImportFormat)
	assert.Contains(t, err.Error(), "history")
}

func fastSeal(passphrase string) *SealConfig {
	return &SealConfig{Passphrase: passphrase, Argon2Time: 1, Argon2Memory: 8 * 1024, Argon2Threads: 1}
}

func TestSeal_RoundTrip(t *testing.T) {
	b := sampleBinder(t)
	data, err := Export(b, ExportOptions{})
	require.NoError(t, err)

	sealed, err := Seal(data, fastSeal("correct horse"))
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.False(t, IsSealed(data))
	assert.NotContains(t, string(sealed), "base1-58")

	got, err := Decode(sealed, fastSeal("correct horse"), ImportOptions{KeepID: true})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.Binder.ID)
	assert.True(t, b.Cards.Equal(got.Binder.Cards))
}

func TestSeal_Failures(t *testing.T) {
	sealed, err := Seal([]byte(`{}`), fastSeal("one"))
	require.NoError(t, err)

	_, err = Unseal(sealed, fastSeal("two"))
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = Decode(sealed, nil, ImportOptions{})
	assert.ErrorIs(t, err, ErrPassphraseRequired)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = Unseal(tampered, fastSeal("one"))
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = Unseal(sealed[:len(SealMagicHeader)+10], fastSeal("one"))
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = Seal([]byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}
