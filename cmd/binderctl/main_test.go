package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

type cli struct {
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	config := "[sync]\ndebounce = \"1h\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0o644))
	return &cli{dir: dir}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(c.dir, "config.toml"), "--data-dir", c.dir, "--offline"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (c *cli) create(t *testing.T, name string) string {
	t.Helper()
	var created struct {
		ID string `json:"id"`
	}
	out := c.mustRun(t, "create", name, "--grid", "2x2", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestCreateAndList(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Paldea")

	var summaries []*models.BinderSummary
	out := c.mustRun(t, "list", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, "Paldea", summaries[0].Name)
	assert.Equal(t, "2x2", summaries[0].GridSize)

	out = c.mustRun(t, "list")
	assert.Contains(t, out, "Paldea")
}

func TestPlaceShowAndUndo(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Scarlet")

	out := c.mustRun(t, "place", id, "1", "sv1-1")
	assert.Contains(t, out, "placed sv1-1 at 1")
	c.mustRun(t, "place", id, "2", "sv1-4", "--reverse-holo")

	out = c.mustRun(t, "show", id)
	assert.Contains(t, out, "Scarlet")
	assert.Contains(t, out, "sv1-1")
	assert.Contains(t, out, "sv1-4 (RH)")

	c.mustRun(t, "undo", id)
	out = c.mustRun(t, "show", id)
	assert.Contains(t, out, "sv1-1")
	assert.NotContains(t, out, "sv1-4")

	c.mustRun(t, "redo", id)
	out = c.mustRun(t, "show", id)
	assert.Contains(t, out, "sv1-4")
}

func TestPlaceRejectsBadPosition(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Violet")

	_, err := c.run(t, "place", id, "first", "sv1-1")
	assert.Error(t, err)
}

func TestMoveAndRemove(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Obsidian")
	c.mustRun(t, "place", id, "0", "sv3-1")

	c.mustRun(t, "move", id, "0", "3")
	out := c.mustRun(t, "show", id)
	assert.Contains(t, out, "3 sv3-1")

	out = c.mustRun(t, "remove", id, "3")
	assert.Contains(t, out, "removed sv3-1")

	out = c.mustRun(t, "remove", id, "3")
	assert.Contains(t, out, "was empty")
}

func TestExportImportRoundTrip(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Trade")
	c.mustRun(t, "place", id, "1", "sv2-10")

	file := filepath.Join(c.dir, "trade.sealed")
	_, err := c.run(t, "export", id, "--seal")
	require.Error(t, err)

	c.mustRun(t, "export", id, "--seal", "--passphrase", "hunter2", "-o", file)

	_, err = c.run(t, "import", file)
	require.Error(t, err)

	var imported struct {
		ID string `json:"id"`
	}
	out := c.mustRun(t, "import", file, "--passphrase", "hunter2", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	assert.NotEqual(t, id, imported.ID)

	out = c.mustRun(t, "show", imported.ID)
	assert.Contains(t, out, "sv2-10")
}

func TestDeleteNeedsForce(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Scratch")

	_, err := c.run(t, "delete", id)
	require.Error(t, err)

	c.mustRun(t, "delete", id, "--force")
	out := c.mustRun(t, "list")
	assert.Contains(t, out, "no binders")
}

func TestSyncWithoutRemote(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Local")

	_, err := c.run(t, "sync", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote configured")
}

func TestBackupCreateListRestore(t *testing.T) {
	c := newCLI(t)
	kept := c.create(t, "Kept")

	var info struct {
		Path    string `json:"path"`
		Binders int    `json:"binders"`
	}
	out := c.mustRun(t, "backup", "create", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 1, info.Binders)

	c.create(t, "Later")

	out = c.mustRun(t, "backup", "list")
	assert.Contains(t, out, filepath.Base(info.Path))

	_, err := c.run(t, "backup", "restore", info.Path)
	require.Error(t, err)
	c.mustRun(t, "backup", "restore", info.Path, "--force")

	var summaries []*models.BinderSummary
	out = c.mustRun(t, "list", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, kept, summaries[0].ID)
}

func TestChecklist(t *testing.T) {
	c := newCLI(t)
	id := c.create(t, "Listed")
	c.mustRun(t, "place", id, "5", "sv3-2", "--reverse-holo")
	c.mustRun(t, "place", id, "0", "sv3-1")

	out := c.mustRun(t, "checklist", id)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "position,page,sheet,row,column,card_id,reverse_holo"))
	assert.True(t, strings.HasPrefix(lines[1], "0,1,1,1,1,sv3-1,false"))
	assert.True(t, strings.HasPrefix(lines[2], "5,2,2,1,2,sv3-2,true"))

	file := filepath.Join(c.dir, "listed.json")
	c.mustRun(t, "checklist", id, "--format", "json", "-o", file)
	_, err := c.run(t, "checklist", id, "--format", "json", "-o", file)
	require.Error(t, err)

	_, err = c.run(t, "checklist", id, "--format", "xml")
	require.Error(t, err)
}
