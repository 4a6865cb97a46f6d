package optimization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// HighCorrelationThreshold marks asset pairs worth logging after a model build.
const HighCorrelationThreshold = 0.80

// ModelOptions configures how prices are turned into a ReturnModel.
type ModelOptions struct {
	PeriodsPerYear int
	RiskFree       bool
	RiskFreeRate   float64
}

// Validate checks the options are usable.
func (o ModelOptions) Validate() error {
	if o.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods per year must be positive, got %d", o.PeriodsPerYear)
	}
	if math.IsNaN(o.RiskFreeRate) || math.IsInf(o.RiskFreeRate, 0) {
		return fmt.Errorf("risk-free rate must be finite")
	}
	return nil
}

// AlignedPrices is a price table after the inner join: every asset has a
// usable close on every date.
type AlignedPrices struct {
	Assets []string
	Dates  []time.Time
	Prices [][]float64 // Prices[asset][date]
}

// ReturnSeries holds per-asset log returns. Dates[t] is the end of period t,
// so there is one fewer entry than aligned price dates. Start is the first
// aligned price date.
type ReturnSeries struct {
	Start   time.Time
	Dates   []time.Time
	Returns [][]float64 // Returns[asset][t]
}

// Periods returns the number of return observations.
func (s ReturnSeries) Periods() int {
	return len(s.Dates)
}

// CorrelationPair is a pair of assets whose correlation exceeds a threshold.
type CorrelationPair struct {
	AssetA      string  `json:"asset_a"`
	AssetB      string  `json:"asset_b"`
	Correlation float64 `json:"correlation"`
}

// ReturnModel is the annualized expected-return vector and covariance matrix
// for an asset universe. It is read-only after Build and safe for concurrent use.
type ReturnModel struct {
	Assets          []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
	RiskyCount      int
	RiskFree        bool
	RiskFreeRate    float64
	PeriodsPerYear  int
	Series          ReturnSeries // risky assets only
}

// Size returns the number of assets including the risk-free asset.
func (m *ReturnModel) Size() int {
	return len(m.Assets)
}

// Index returns the weight index of an asset, or -1.
func (m *ReturnModel) Index(asset string) int {
	for i, a := range m.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// Volatilities returns the annualized standard deviation of every asset.
func (m *ReturnModel) Volatilities() []float64 {
	vols := make([]float64, m.Size())
	for i := range vols {
		vols[i] = math.Sqrt(math.Max(0, m.Covariance.At(i, i)))
	}
	return vols
}

// Correlations returns the asset pairs whose absolute correlation is at least
// threshold. Assets with zero variance are never paired.
func (m *ReturnModel) Correlations(threshold float64) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)
	n := m.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := m.Covariance.At(i, i), m.Covariance.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			corr := m.Covariance.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(corr) >= threshold {
				pairs = append(pairs, CorrelationPair{
					AssetA:      m.Assets[i],
					AssetB:      m.Assets[j],
					Correlation: corr,
				})
			}
		}
	}
	return pairs
}

// PortfolioReturn returns wᵀμ.
func (m *ReturnModel) PortfolioReturn(weights []float64) float64 {
	var r float64
	for i, w := range weights {
		r += w * m.ExpectedReturns[i]
	}
	return r
}

// PortfolioVolatility returns sqrt(wᵀΣw).
func (m *ReturnModel) PortfolioVolatility(weights []float64) float64 {
	w := mat.NewVecDense(len(weights), weights)
	return math.Sqrt(math.Max(0, mat.Inner(w, m.Covariance, w)))
}

// ModelCache stores built models keyed by a hash of their inputs.
type ModelCache interface {
	Get(key string) (*ReturnModel, bool, error)
	Put(key string, model *ReturnModel) error
}

// ReturnModelBuilder turns price tables into ReturnModels.
type ReturnModelBuilder struct {
	cache ModelCache
	log   zerolog.Logger
}

// NewReturnModelBuilder creates a new return model builder.
func NewReturnModelBuilder(log zerolog.Logger) *ReturnModelBuilder {
	return &ReturnModelBuilder{
		log: log.With().Str("component", "return_model").Logger(),
	}
}

// SetCache sets an optional model cache. Without one every Build recomputes.
func (b *ReturnModelBuilder) SetCache(cache ModelCache) {
	b.cache = cache
}

// Build aligns the table and estimates the model.
func (b *ReturnModelBuilder) Build(table domain.PriceTable, opts ModelOptions) (*ReturnModel, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	aligned, err := AlignPrices(table)
	if err != nil {
		return nil, err
	}

	var key string
	if b.cache != nil {
		key = CacheKey(aligned, opts)
		cached, ok, err := b.cache.Get(key)
		if err != nil {
			b.log.Warn().Err(err).Msg("Model cache lookup failed, rebuilding")
		} else if ok {
			b.log.Debug().Str("key", key).Msg("Using cached return model")
			return cached, nil
		}
	}

	model, err := BuildFromAligned(aligned, opts)
	if err != nil {
		return nil, err
	}

	for _, pair := range model.Correlations(HighCorrelationThreshold) {
		b.log.Debug().
			Str("asset_a", pair.AssetA).
			Str("asset_b", pair.AssetB).
			Float64("correlation", pair.Correlation).
			Msg("High correlation detected")
	}

	b.log.Info().
		Int("assets", model.RiskyCount).
		Int("periods", model.Series.Periods()).
		Bool("risk_free", model.RiskFree).
		Msg("Built return model")

	if b.cache != nil {
		if err := b.cache.Put(key, model); err != nil {
			b.log.Warn().Err(err).Msg("Failed to cache return model")
		}
	}

	return model, nil
}

// AlignPrices inner-joins the table on dates. Assets come out sorted by
// identifier. A non-positive or NaN close makes that date unusable for all
// assets.
func AlignPrices(table domain.PriceTable) (AlignedPrices, error) {
	if len(table) == 0 {
		return AlignedPrices{}, fmt.Errorf("price table has no assets")
	}

	assets := table.Assets()
	closes := make([]map[int64]float64, len(assets))
	counts := make(map[int64]int)
	for i, asset := range assets {
		byDate := make(map[int64]float64, len(table[asset]))
		for _, p := range table[asset] {
			byDate[dateKey(p.Date)] = p.Close
		}
		for k, c := range byDate {
			if c > 0 && !math.IsNaN(c) && !math.IsInf(c, 0) {
				counts[k]++
			}
		}
		closes[i] = byDate
	}

	keys := make([]int64, 0, len(counts))
	for k, c := range counts {
		if c == len(assets) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	aligned := AlignedPrices{
		Assets: assets,
		Dates:  make([]time.Time, len(keys)),
		Prices: make([][]float64, len(assets)),
	}
	for t, k := range keys {
		aligned.Dates[t] = time.Unix(k, 0).UTC()
	}
	for i := range assets {
		series := make([]float64, len(keys))
		for t, k := range keys {
			series[t] = closes[i][k]
		}
		aligned.Prices[i] = series
	}

	return aligned, nil
}

// BuildFromAligned estimates the model from already aligned prices.
func BuildFromAligned(aligned AlignedPrices, opts ModelOptions) (*ReturnModel, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	periods := len(aligned.Dates) - 1
	if periods < 2 {
		return nil, &domain.InsufficientDataError{Periods: max(periods, 0)}
	}

	n := len(aligned.Assets)
	series := ReturnSeries{
		Start:   aligned.Dates[0],
		Dates:   append([]time.Time(nil), aligned.Dates[1:]...),
		Returns: make([][]float64, n),
	}
	data := mat.NewDense(periods, n, nil)
	for j := range aligned.Assets {
		returns := formulas.LogReturns(aligned.Prices[j])
		series.Returns[j] = returns
		data.SetCol(j, returns)
	}

	size := n
	if opts.RiskFree {
		size++
	}

	scale := float64(opts.PeriodsPerYear)
	expected := make([]float64, size)
	for j := 0; j < n; j++ {
		expected[j] = formulas.Annualize(formulas.Mean(series.Returns[j]), opts.PeriodsPerYear)
	}

	var sample mat.SymDense
	stat.CovarianceMatrix(&sample, data, nil)

	cov := mat.NewSymDense(size, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, sample.At(i, j)*scale)
		}
	}

	assets := append([]string(nil), aligned.Assets...)
	if opts.RiskFree {
		assets = append(assets, domain.RiskFreeAsset)
		expected[n] = opts.RiskFreeRate
	}

	return &ReturnModel{
		Assets:          assets,
		ExpectedReturns: expected,
		Covariance:      cov,
		RiskyCount:      n,
		RiskFree:        opts.RiskFree,
		RiskFreeRate:    opts.RiskFreeRate,
		PeriodsPerYear:  opts.PeriodsPerYear,
		Series:          series,
	}, nil
}

// CacheKey hashes the aligned prices and options into a stable cache key.
func CacheKey(aligned AlignedPrices, opts ModelOptions) string {
	h := sha256.New()
	buf := make([]byte, 8)
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}

	fmt.Fprintf(h, "%d|%t|", opts.PeriodsPerYear, opts.RiskFree)
	writeFloat(opts.RiskFreeRate)
	for _, asset := range aligned.Assets {
		fmt.Fprintf(h, "%s,", asset)
	}
	for _, d := range aligned.Dates {
		binary.LittleEndian.PutUint64(buf, uint64(d.Unix()))
		h.Write(buf)
	}
	for _, series := range aligned.Prices {
		for _, p := range series {
			writeFloat(p)
		}
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func dateKey(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
