package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/state"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func populated(t *testing.T) *state.Store {
	t.Helper()
	s := state.New()
	require.NoError(t, s.Commit(state.MedicalUpdate{Summary: state.MedicalSummary{
		SourceMessageID: "m1",
		Subject:         "Digest",
		Summary:         "Summary: trend X rising",
		TrendTags:       []string{"oncology"},
		CreatedAt:       t0,
	}}))
	require.NoError(t, s.Commit(state.DraftUpdate{Draft: state.Draft{
		SourceMessageID: "m2",
		To:              "a@example.com",
		Subject:         "Re: question",
		Text:            "Thanks, we will reply shortly.",
		Status:          state.DraftPending,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}}))
	require.NoError(t, s.Commit(state.ContactUpdate{
		SourceMessageID: "m3",
		ContactID:       state.ContactID("supplier@example.com"),
		Name:            "Supplier",
		Email:           "supplier@example.com",
		Action:          state.ContactEnsure,
		At:              t0,
		NextActionAt:    t0.Add(48 * time.Hour),
	}))
	require.NoError(t, s.MarkProcessed("m4"))
	s.AdvanceCheckpoint(t0.Add(time.Hour))
	s.RecordReport(state.ReportRecord{Kind: "weekly_outreach", PeriodStart: t0.Add(-7 * 24 * time.Hour), PeriodEnd: t0, PublishedAt: t0})
	return s
}

func roundTrip(t *testing.T, p Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := p.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found, "nothing saved yet")

	want := populated(t).Snapshot()
	require.NoError(t, p.Save(ctx, want))

	got, found, err := p.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)

	first, err := encode(got)
	require.NoError(t, err)

	// Saving what was loaded must not drift.
	restored, err := state.FromSnapshot(got)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, restored.Snapshot()))
	again, _, err := p.Load(ctx)
	require.NoError(t, err)
	second, err := encode(again)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestFileStore_RoundTrip(t *testing.T) {
	p, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "context.json"))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	roundTrip(t, p)

	entries, err := os.ReadDir(filepath.Dir(p.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "context.json", entries[0].Name())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	p, err := NewFileStore(path)
	require.NoError(t, err)

	_, _, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	p, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "db", "context.db"))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	roundTrip(t, p)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "context.db")

	p, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	want := populated(t).Snapshot()
	require.NoError(t, p.Save(ctx, want))
	require.NoError(t, p.Close())

	p, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	got, found, err := p.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestLoadState(t *testing.T) {
	ctx := context.Background()
	p, err := NewFileStore(filepath.Join(t.TempDir(), "context.json"))
	require.NoError(t, err)

	st, err := LoadState(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Processed())

	require.NoError(t, p.Save(ctx, populated(t).Snapshot()))
	st, err = LoadState(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Processed())
	assert.Equal(t, t0.Add(time.Hour), st.Checkpoint())
}

func TestLoadState_RejectsInvalidSnapshot(t *testing.T) {
	ctx := context.Background()
	p, err := NewFileStore(filepath.Join(t.TempDir(), "context.json"))
	require.NoError(t, err)

	snap := populated(t).Snapshot()
	// A summary whose source message is not in the ledger.
	snap.ProcessedIDs = snap.ProcessedIDs[1:]
	require.NoError(t, p.Save(ctx, snap))

	_, err = LoadState(ctx, p)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default is file", cfg: Config{Path: filepath.Join(dir, "a.json")}},
		{name: "file", cfg: Config{Type: TypeFile, Path: filepath.Join(dir, "b.json")}},
		{name: "sqlite", cfg: Config{Type: TypeSQLite, Path: filepath.Join(dir, "c.db")}},
		{name: "file without path", cfg: Config{Type: TypeFile}, wantErr: true},
		{name: "sqlite without path", cfg: Config{Type: TypeSQLite}, wantErr: true},
		{name: "valkey without url", cfg: Config{Type: TypeValkey}, wantErr: true},
		{name: "unknown", cfg: Config{Type: "etcd", Path: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Open(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, p.Close())
		})
	}
}

func TestValkeyConfig_SnapshotKey(t *testing.T) {
	assert.Equal(t, "inboxagent:context", ValkeyConfig{}.SnapshotKey())
	assert.Equal(t, "prod:context", ValkeyConfig{KeyPrefix: "prod:"}.SnapshotKey())
}
