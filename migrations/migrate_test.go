package migrations_test

import (
	"context"
	"testing"

	"github.com/prohmpiriya/showtime-ledger/internal/testutil"
	"github.com/prohmpiriya/showtime-ledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_Ordered(t *testing.T) {
	names, err := migrations.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_shows.sql", "002_create_bookings.sql", "003_index_shows_movie.sql"}, names)
}

func TestApply_Idempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	// NewTestDB already migrated; a second run applies nothing
	applied, err := migrations.Apply(ctx, db.Pool())
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int
	require.NoError(t, db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}
