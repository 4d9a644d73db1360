// ABOUTME: Tests for the SQLite transcript archive
// ABOUTME: Covers append, chronological readback, limits, and file creation

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewSQLiteArchive(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSaveAndReadBack(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	lines := []conversation.Line{
		{Timestamp: base, From: conversation.OriginCustomer, Text: "Hi"},
		{Timestamp: base.Add(time.Second), From: conversation.OriginAgent, Text: "Hello!"},
		{Timestamp: base.Add(2 * time.Second), From: conversation.OriginCustomer, Text: "help"},
	}
	for _, l := range lines {
		require.NoError(t, a.SaveLine(ctx, "conv-1", l))
	}
	// A second conversation must not bleed into the first.
	require.NoError(t, a.SaveLine(ctx, "conv-2", conversation.Line{
		Timestamp: base, From: conversation.OriginCustomer, Text: "other",
	}))

	got, err := a.LinesByCustomer(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, l := range lines {
		assert.Equal(t, "conv-1", got[i].CustomerID)
		assert.Equal(t, l.From, got[i].From)
		assert.Equal(t, l.Text, got[i].Text)
		assert.True(t, got[i].CreatedAt.Equal(l.Timestamp), "timestamps round-trip")
	}
}

func TestLinesByCustomer_Limit(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, a.SaveLine(ctx, "conv-1", conversation.Line{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			From:      conversation.OriginCustomer,
			Text:      text,
		}))
	}

	got, err := a.LinesByCustomer(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recent two, oldest first.
	assert.Equal(t, "two", got[0].Text)
	assert.Equal(t, "three", got[1].Text)
}

func TestLinesByCustomer_Empty(t *testing.T) {
	a := newTestArchive(t)

	got, err := a.LinesByCustomer(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountLines(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	n, err := a.CountLines(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, a.SaveLine(ctx, "conv-1", conversation.Line{
		Timestamp: time.Now(), From: conversation.OriginCustomer, Text: "Hi",
	}))

	n, err = a.CountLines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSQLiteArchive_CreatesParentDirs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")

	a, err := NewSQLiteArchive(path, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SaveLine(context.Background(), "conv-1", conversation.Line{
		Timestamp: time.Now(), From: conversation.OriginAgent, Text: "persisted",
	}))
}
