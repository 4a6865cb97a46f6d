package runs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// DefaultModelTTL is how long a cached return model stays fresh.
const DefaultModelTTL = 24 * time.Hour

// modelSnapshot is the msgpack form of a ReturnModel.
type modelSnapshot struct {
	Assets          []string    `msgpack:"assets"`
	ExpectedReturns []float64   `msgpack:"mu"`
	Covariance      []float64   `msgpack:"cov"` // row-major, n*n
	RiskyCount      int         `msgpack:"risky"`
	RiskFree        bool        `msgpack:"rf"`
	RiskFreeRate    float64     `msgpack:"rf_rate"`
	PeriodsPerYear  int         `msgpack:"ppy"`
	Start           int64       `msgpack:"start"`
	Dates           []int64     `msgpack:"dates"`
	Returns         [][]float64 `msgpack:"returns"`
}

// ModelCacheStore persists return models in the model_cache table.
type ModelCacheStore struct {
	db      *sql.DB
	ttl     time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewModelCacheStore creates a new model cache store. A non-positive ttl
// uses DefaultModelTTL.
func NewModelCacheStore(db *sql.DB, ttl time.Duration, m *metrics.Metrics, log zerolog.Logger) *ModelCacheStore {
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}
	return &ModelCacheStore{
		db:      db,
		ttl:     ttl,
		metrics: m,
		log:     log.With().Str("component", "model_cache").Logger(),
	}
}

// Get returns a fresh cached model.
func (s *ModelCacheStore) Get(key string) (*optimization.ReturnModel, bool, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM model_cache WHERE key = ? AND expires_at > ?", key, time.Now().Unix()).Scan(&data)
	if err == sql.ErrNoRows {
		s.metrics.ObserveModelCache(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read model cache: %w", err)
	}

	model, err := decodeModel(data)
	if err != nil {
		return nil, false, err
	}
	s.metrics.ObserveModelCache(true)
	return model, true, nil
}

// Put stores a model with expiration = now + ttl.
func (s *ModelCacheStore) Put(key string, model *optimization.ReturnModel) error {
	data, err := encodeModel(model)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.Exec("INSERT OR REPLACE INTO model_cache (key, data, created_at, expires_at) VALUES (?, ?, ?, ?)",
		key, data, now.Unix(), now.Add(s.ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to write model cache: %w", err)
	}
	return nil
}

// DeleteExpired removes expired entries and returns how many were removed.
func (s *ModelCacheStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec("DELETE FROM model_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired models: %w", err)
	}
	return result.RowsAffected()
}

func encodeModel(m *optimization.ReturnModel) ([]byte, error) {
	n := m.Size()
	snap := modelSnapshot{
		Assets:          m.Assets,
		ExpectedReturns: m.ExpectedReturns,
		Covariance:      make([]float64, 0, n*n),
		RiskyCount:      m.RiskyCount,
		RiskFree:        m.RiskFree,
		RiskFreeRate:    m.RiskFreeRate,
		PeriodsPerYear:  m.PeriodsPerYear,
		Start:           m.Series.Start.Unix(),
		Dates:           make([]int64, len(m.Series.Dates)),
		Returns:         m.Series.Returns,
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			snap.Covariance = append(snap.Covariance, m.Covariance.At(i, j))
		}
	}
	for i, d := range m.Series.Dates {
		snap.Dates[i] = d.Unix()
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return data, nil
}

func decodeModel(data []byte) (*optimization.ReturnModel, error) {
	var snap modelSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	n := len(snap.Assets)
	if n == 0 || len(snap.Covariance) != n*n || len(snap.ExpectedReturns) != n {
		return nil, fmt.Errorf("cached model is corrupt: %d assets, %d covariance entries", n, len(snap.Covariance))
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, snap.Covariance[i*n+j])
		}
	}
	dates := make([]time.Time, len(snap.Dates))
	for i, d := range snap.Dates {
		dates[i] = time.Unix(d, 0).UTC()
	}

	return &optimization.ReturnModel{
		Assets:          snap.Assets,
		ExpectedReturns: snap.ExpectedReturns,
		Covariance:      cov,
		RiskyCount:      snap.RiskyCount,
		RiskFree:        snap.RiskFree,
		RiskFreeRate:    snap.RiskFreeRate,
		PeriodsPerYear:  snap.PeriodsPerYear,
		Series: optimization.ReturnSeries{
			Start:   time.Unix(snap.Start, 0).UTC(),
			Dates:   dates,
			Returns: snap.Returns,
		},
	}, nil
}
