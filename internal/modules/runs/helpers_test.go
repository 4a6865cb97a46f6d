package runs

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "allocator.db"), Name: "allocator"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newCacheDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.db"), Profile: database.ProfileCache, Name: "cache"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// priceTable builds four years of reproducible monthly prices from January 2006.
func priceTable() domain.PriceTable {
	rng := rand.New(rand.NewSource(99))
	start := time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC)
	drifts := map[string]float64{"BA": 0.009, "GLD": 0.004, "SPY": 0.006}

	table := domain.PriceTable{}
	for _, asset := range []string{"BA", "GLD", "SPY"} {
		price := 100.0
		points := []domain.PricePoint{{Date: start, Close: price}}
		for i := 1; i <= 48; i++ {
			price *= math.Exp(drifts[asset] + 0.04*rng.NormFloat64())
			points = append(points, domain.PricePoint{Date: start.AddDate(0, i, 0), Close: price})
		}
		table[asset] = points
	}
	return table
}
