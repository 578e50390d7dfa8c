package datasource

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vk/dpgraph/internal/options"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("census"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	pg, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	_, err = pg.Pool.Exec(ctx, `
		CREATE TABLE people (id serial, age integer, income numeric(10,2), region text);
		INSERT INTO people (age, income, region) VALUES
			(30, 100.50, 'north'), (41, NULL, 'south'), (52, 300, 'north');`)
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(options.SourcePostgres, pg)
	o := &options.Datasource{
		Source:   "postgres",
		Query:    "SELECT region, income, age FROM people ORDER BY id",
		Columns:  []string{"age", "income"},
		Keys:     []string{"region"},
		Nullable: true,
	}
	tbl, err := reg.Load(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 41, 52}, tbl.Cols[0])
	assert.Equal(t, 100.5, tbl.Cols[1][0])
	assert.True(t, math.IsNaN(tbl.Cols[1][1]))
	assert.Equal(t, []string{"north", "south", "north"}, tbl.Keys["region"])

	o.Columns = []string{"height"}
	_, err = reg.Load(ctx, o)
	assert.ErrorContains(t, err, `no column "height"`)
}
