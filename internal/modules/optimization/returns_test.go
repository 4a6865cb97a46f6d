package optimization

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var baseDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// tableFromLogReturns builds a monthly price table starting at 100 whose
// log returns are exactly the given series.
func tableFromLogReturns(series map[string][]float64) domain.PriceTable {
	table := make(domain.PriceTable, len(series))
	for asset, returns := range series {
		price := 100.0
		points := []domain.PricePoint{{Date: baseDate, Close: price}}
		for i, r := range returns {
			price *= math.Exp(r)
			points = append(points, domain.PricePoint{Date: baseDate.AddDate(0, i+1, 0), Close: price})
		}
		table[asset] = points
	}
	return table
}

// randomTable builds a reproducible table of normally distributed log returns.
func randomTable(seed int64, periods int, drifts map[string]float64) domain.PriceTable {
	rng := rand.New(rand.NewSource(seed))
	series := make(map[string][]float64, len(drifts))
	for _, asset := range sortedKeys(drifts) {
		returns := make([]float64, periods)
		for i := range returns {
			returns[i] = drifts[asset] + 0.04*rng.NormFloat64()
		}
		series[asset] = returns
	}
	return tableFromLogReturns(series)
}

func sortedKeys(m map[string]float64) []string {
	return domain.Scenario{Constraints: m}.ConstrainedAssets()
}

// modelFrom builds a model directly from annualized statistics.
func modelFrom(assets []string, mu []float64, cov [][]float64) *ReturnModel {
	n := len(assets)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, cov[i][j])
		}
	}
	return &ReturnModel{
		Assets:          assets,
		ExpectedReturns: mu,
		Covariance:      sym,
		RiskyCount:      n,
		PeriodsPerYear:  12,
	}
}

var monthly = ModelOptions{PeriodsPerYear: 12}

func TestAlignPrices_InnerJoin(t *testing.T) {
	d := func(m int) time.Time { return baseDate.AddDate(0, m, 0) }
	table := domain.PriceTable{
		"B": {{Date: d(0), Close: 10}, {Date: d(2), Close: 12}, {Date: d(3), Close: 13}},
		"A": {{Date: d(0), Close: 1}, {Date: d(1), Close: 2}, {Date: d(2), Close: 3}, {Date: d(3), Close: 4}},
	}

	aligned, err := AlignPrices(table)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, aligned.Assets)
	require.Len(t, aligned.Dates, 3)
	assert.True(t, aligned.Dates[0].Equal(d(0)))
	assert.True(t, aligned.Dates[2].Equal(d(3)))
	assert.Equal(t, []float64{1, 3, 4}, aligned.Prices[0])
	assert.Equal(t, []float64{10, 12, 13}, aligned.Prices[1])
}

func TestAlignPrices_DropsUnusableCloses(t *testing.T) {
	d := func(m int) time.Time { return baseDate.AddDate(0, m, 0) }
	table := domain.PriceTable{
		"A": {{Date: d(0), Close: 1}, {Date: d(1), Close: 0}, {Date: d(2), Close: 3}},
		"B": {{Date: d(0), Close: 5}, {Date: d(1), Close: 6}, {Date: d(2), Close: math.NaN()}},
	}

	aligned, err := AlignPrices(table)
	require.NoError(t, err)
	require.Len(t, aligned.Dates, 1)
	assert.True(t, aligned.Dates[0].Equal(d(0)))
}

func TestAlignPrices_EmptyTable(t *testing.T) {
	_, err := AlignPrices(domain.PriceTable{})
	assert.Error(t, err)
}

func TestBuild_InsufficientData(t *testing.T) {
	builder := NewReturnModelBuilder(zerolog.Nop())

	tests := []struct {
		name    string
		returns []float64
		periods int
	}{
		{"single price point", nil, 0},
		{"two price points", []float64{0.01}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := tableFromLogReturns(map[string][]float64{"A": tt.returns, "B": tt.returns})
			require.Len(t, table["A"], tt.periods+1)

			_, err := builder.Build(table, monthly)

			var insufficient *domain.InsufficientDataError
			require.True(t, errors.As(err, &insufficient))
			assert.Equal(t, tt.periods, insufficient.Periods)
		})
	}
}

func TestBuild_ThreePricePointsIsEnough(t *testing.T) {
	table := tableFromLogReturns(map[string][]float64{"A": {0.01, 0.03}, "B": {0.02, 0.00}})
	require.Len(t, table["A"], 3)

	model, err := NewReturnModelBuilder(zerolog.Nop()).Build(table, monthly)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Series.Periods())
}

func TestBuild_InvalidOptions(t *testing.T) {
	builder := NewReturnModelBuilder(zerolog.Nop())
	table := tableFromLogReturns(map[string][]float64{"A": {0.01, 0.02, 0.03}})

	_, err := builder.Build(table, ModelOptions{PeriodsPerYear: 0})
	assert.Error(t, err)
}

func TestBuild_AnnualizesMeanAndCovariance(t *testing.T) {
	builder := NewReturnModelBuilder(zerolog.Nop())
	table := tableFromLogReturns(map[string][]float64{
		"A": {0.01, 0.03},
		"B": {0.02, 0.00},
	})

	model, err := builder.Build(table, monthly)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, model.Assets)
	assert.InDelta(t, 0.24, model.ExpectedReturns[0], 1e-9)
	assert.InDelta(t, 0.12, model.ExpectedReturns[1], 1e-9)
	// Sample variance of {0.01, 0.03} is 0.0002; covariance with {0.02, 0} is -0.0002.
	assert.InDelta(t, 0.0024, model.Covariance.At(0, 0), 1e-9)
	assert.InDelta(t, 0.0024, model.Covariance.At(1, 1), 1e-9)
	assert.InDelta(t, -0.0024, model.Covariance.At(0, 1), 1e-9)
	assert.Equal(t, 2, model.Series.Periods())
	assert.Equal(t, 2, model.RiskyCount)
	assert.False(t, model.RiskFree)
}

func TestBuild_CovarianceSymmetricPSD(t *testing.T) {
	builder := NewReturnModelBuilder(zerolog.Nop())
	table := randomTable(7, 48, map[string]float64{"SPY": 0.006, "BA": 0.008, "TLT": 0.003, "GLD": 0.004})

	for _, riskFree := range []bool{false, true} {
		model, err := builder.Build(table, ModelOptions{PeriodsPerYear: 12, RiskFree: riskFree, RiskFreeRate: 0.04})
		require.NoError(t, err)

		n := model.Size()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				assert.Equal(t, model.Covariance.At(i, j), model.Covariance.At(j, i))
			}
		}

		var eig mat.EigenSym
		require.True(t, eig.Factorize(model.Covariance, false))
		for _, v := range eig.Values(nil) {
			assert.GreaterOrEqual(t, v, -1e-12)
		}
	}
}

func TestBuild_RiskFreeAugmentation(t *testing.T) {
	builder := NewReturnModelBuilder(zerolog.Nop())
	table := randomTable(3, 24, map[string]float64{"A": 0.005, "B": 0.007})

	model, err := builder.Build(table, ModelOptions{PeriodsPerYear: 12, RiskFree: true, RiskFreeRate: 0.04})
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B", domain.RiskFreeAsset}, model.Assets)
	assert.Equal(t, 2, model.RiskyCount)
	assert.Equal(t, 0.04, model.ExpectedReturns[2])
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, model.Covariance.At(2, i))
	}
	assert.Len(t, model.Series.Returns, 2, "series covers risky assets only")
}

func TestReturnModel_PortfolioStatistics(t *testing.T) {
	model := modelFrom([]string{"A", "B"}, []float64{0.12, 0.08}, [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	})

	w := []float64{0.5, 0.5}
	assert.InDelta(t, 0.10, model.PortfolioReturn(w), 1e-12)
	// 0.25*0.04 + 0.25*0.09 + 2*0.25*0.01 = 0.0375
	assert.InDelta(t, math.Sqrt(0.0375), model.PortfolioVolatility(w), 1e-12)
	assert.InDeltaSlice(t, []float64{0.2, 0.3}, model.Volatilities(), 1e-12)
	assert.Equal(t, 1, model.Index("B"))
	assert.Equal(t, -1, model.Index("C"))
}

func TestReturnModel_Correlations(t *testing.T) {
	same := []float64{0.01, -0.02, 0.03, 0.00, 0.015}
	other := []float64{0.02, 0.01, -0.01, 0.03, -0.02}
	builder := NewReturnModelBuilder(zerolog.Nop())
	model, err := builder.Build(tableFromLogReturns(map[string][]float64{
		"A": same, "B": same, "C": other,
	}), ModelOptions{PeriodsPerYear: 12, RiskFree: true, RiskFreeRate: 0.04})
	require.NoError(t, err)

	pairs := model.Correlations(HighCorrelationThreshold)
	require.Len(t, pairs, 1)
	assert.Equal(t, "A", pairs[0].AssetA)
	assert.Equal(t, "B", pairs[0].AssetB)
	assert.InDelta(t, 1.0, pairs[0].Correlation, 1e-9)
}

type memoryCache struct {
	models map[string]*ReturnModel
	gets   int
	puts   int
}

func (c *memoryCache) Get(key string) (*ReturnModel, bool, error) {
	c.gets++
	m, ok := c.models[key]
	return m, ok, nil
}

func (c *memoryCache) Put(key string, model *ReturnModel) error {
	c.puts++
	c.models[key] = model
	return nil
}

func TestBuild_UsesCache(t *testing.T) {
	cache := &memoryCache{models: map[string]*ReturnModel{}}
	builder := NewReturnModelBuilder(zerolog.Nop())
	builder.SetCache(cache)
	table := randomTable(11, 12, map[string]float64{"A": 0.01, "B": 0.0})

	first, err := builder.Build(table, monthly)
	require.NoError(t, err)
	second, err := builder.Build(table, monthly)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.puts)

	_, err = builder.Build(table, ModelOptions{PeriodsPerYear: 12, RiskFree: true, RiskFreeRate: 0.04})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.puts, "different options must miss the cache")
}

func TestCacheKey_Stable(t *testing.T) {
	table := randomTable(5, 12, map[string]float64{"A": 0.01, "B": 0.0})
	a1, err := AlignPrices(table)
	require.NoError(t, err)
	a2, err := AlignPrices(table)
	require.NoError(t, err)

	assert.Equal(t, CacheKey(a1, monthly), CacheKey(a2, monthly))
	assert.Len(t, CacheKey(a1, monthly), 32)

	a2.Prices[0][3] *= 1.0001
	assert.NotEqual(t, CacheKey(a1, monthly), CacheKey(a2, monthly))
}
