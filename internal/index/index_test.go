// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/pkg/types"
)

func testDB(t *testing.T) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, dir
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)

	_, ok, err := db.Lookup(ctx, "2026-02-25/x/tags")
	require.NoError(t, err)
	assert.False(t, ok)

	written := time.Date(2026, 2, 25, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.Record(ctx, "2026-02-25/x/tags", cache.Entry{Size: 12, SHA256: "abc", WrittenAt: written}))

	e, ok, err := db.Lookup(ctx, "2026-02-25/x/tags")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), e.Size)
	assert.Equal(t, "abc", e.SHA256)
	assert.True(t, written.Equal(e.WrittenAt))

	require.NoError(t, db.Forget(ctx, "2026-02-25/x/tags"))
	_, ok, err = db.Lookup(ctx, "2026-02-25/x/tags")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManifestBacksCacheStore(t *testing.T) {
	ctx := context.Background()
	db, dir := testDB(t)
	store := cache.NewStore(dir, db, nil)
	key := cache.Key{Date: "2026-02-25", PaperID: "2502.01234", Stage: cache.StageAbstract}

	require.NoError(t, store.Put(ctx, key, []byte("摘要")))
	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "摘要", string(got))

	// Reopening the database keeps the completion record.
	require.NoError(t, db.Close())
	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err = cache.NewStore(dir, reopened, nil).Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = os.Stat(store.Path(key))
	assert.NoError(t, err)
}

func TestRunLedger(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)

	none, err := db.LatestRun(ctx, "2026-02-25")
	require.NoError(t, err)
	assert.Nil(t, none)

	run, err := db.StartRun(ctx, "2026-02-25")
	require.NoError(t, err)
	assert.Len(t, run.RunID, 36)

	papers := []types.PaperReport{
		{
			ArxivID: "2502.00002",
			Status:  types.StatusComplete,
			Source:  types.SourceHTML,
			Stages:  []types.StageResult{{Stage: types.StageContent, Outcome: types.OutcomeOK}},
		},
		{
			ArxivID: "2502.00001",
			Status:  types.StatusPartial,
			Source:  types.SourcePDFMarkdown,
			Stages: []types.StageResult{
				{Stage: types.StageContent, Outcome: types.OutcomeOK},
				{Stage: types.StageTranslation, Outcome: types.OutcomeFailed, Kind: types.FailureRemote, Message: "HTTP 500"},
			},
		},
	}
	for i, p := range papers {
		require.NoError(t, db.RecordPaper(ctx, run.RunID, i, p))
	}
	require.NoError(t, db.FinishRun(ctx, run.RunID))

	got, err := db.LatestRun(ctx, "2026-02-25")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.RunID, got.RunID)
	assert.False(t, got.FinishedAt.IsZero())
	assert.Equal(t, papers, got.Papers, "papers come back in listing order")

	anyDate, err := db.LatestRun(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, anyDate.RunID)
}

func TestLatestRunPicksNewest(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)

	clock := time.Date(2026, 2, 25, 6, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }
	first, err := db.StartRun(ctx, "2026-02-25")
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	second, err := db.StartRun(ctx, "2026-02-25")
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)

	got, err := db.LatestRun(ctx, "2026-02-25")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, got.RunID)
}
