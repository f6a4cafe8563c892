package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/config"
	"github.com/ramonehamilton/binder-companion/internal/remote"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Sync.Debounce = "1h"
	return cfg, dir
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Binder.DefaultGrid = "5x5"

	_, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNew_ResolvesPaths(t *testing.T) {
	cfg, dir := testConfig(t)

	a, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	assert.Equal(t, filepath.Join(dir, "binders.db"), a.Config.Storage.DatabasePath)
	assert.FileExists(t, a.Config.Storage.DatabasePath)
	assert.DirExists(t, filepath.Join(dir, "scratch"))
	assert.Nil(t, a.Remote)
	assert.NotNil(t, a.Editor.TypeOrder())
}

func TestApp_FlushReachesRemote(t *testing.T) {
	cfg, dir := testConfig(t)
	store := remote.NewMemoryStore()

	a, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true, Remote: store})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	ctx := context.Background()
	session, err := a.Editor.Create(ctx, "Paldea", binder.Grid3x3)
	require.NoError(t, err)
	_, err = session.Place(ctx, 1, binder.NewCardRef("sv1-1", false), false)
	require.NoError(t, err)

	result, err := session.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	snap, err := store.Fetch(ctx, session.Binder().ID)
	require.NoError(t, err)
	ref, ok := snap.Binder.Cards.Get(1)
	require.True(t, ok)
	assert.Equal(t, "sv1-1", ref.CardID)
}

func TestApp_ReopenKeepsBinders(t *testing.T) {
	cfg, dir := testConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	session, err := a.Editor.Create(ctx, "Scarlet", binder.Grid2x2)
	require.NoError(t, err)
	_, err = session.Place(ctx, 2, binder.NewCardRef("sv1-4", true), false)
	require.NoError(t, err)
	id := session.Binder().ID
	require.NoError(t, a.Close())

	cfg2, _ := testConfig(t)
	b, err := New(ctx, cfg2, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	summaries, err := b.Editor.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].CardCount)

	reopened, err := b.Editor.Open(ctx, id)
	require.NoError(t, err)
	ref, ok := reopened.Binder().Cards.Get(2)
	require.True(t, ok)
	assert.True(t, ref.IsReverseHolo)
}

func TestApp_RemoteDirFromConfig(t *testing.T) {
	cfg, dir := testConfig(t)
	shared := filepath.Join(t.TempDir(), "shared")
	cfg.Sync.RemoteDir = shared

	a, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	disk, ok := a.Remote.(*remote.DiskStore)
	require.True(t, ok)

	ctx := context.Background()
	session, err := a.Editor.Create(ctx, "Shared", binder.Grid3x3)
	require.NoError(t, err)
	_, err = session.Place(ctx, 1, binder.NewCardRef("sv1-1", false), false)
	require.NoError(t, err)
	_, err = session.Flush(ctx)
	require.NoError(t, err)

	assert.Contains(t, disk.Keys(ctx), session.Binder().ID)
}

func TestApp_BackupSchedule(t *testing.T) {
	cfg, dir := testConfig(t)

	a, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	started, err := a.StartBackups()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Nil(t, a.BackupStatus())
	require.NoError(t, a.Close())

	cfg, _ = testConfig(t)
	cfg.Storage.BackupInterval = "24h"
	b, err := New(context.Background(), cfg, Options{DataDir: dir, Offline: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	started, err = b.StartBackups()
	require.NoError(t, err)
	assert.True(t, started)
	require.NotNil(t, b.BackupStatus())
	assert.True(t, b.BackupStatus().Running)

	info, err := b.Backups.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups"), filepath.Dir(info.Path))
}
