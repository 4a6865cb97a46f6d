// Package pricefiles reads per-asset close-price CSV files from a directory.
package pricefiles

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
)

// Loader reads <TICKER>.csv files. Each file needs a Date and a Close column;
// other columns are ignored.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new price file loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("client", "pricefiles").Logger(),
	}
}

// Load reads every .csv file in dir. The asset identifier is the file name
// up to its first dot. When two files share an identifier the later file in
// name order wins and a warning is logged.
func (l *Loader) Load(dir string) (domain.PriceTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read price directory: %w", err)
	}

	table := make(domain.PriceTable)
	sources := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		asset := strings.SplitN(entry.Name(), ".", 2)[0]
		if asset == "" {
			continue
		}

		points, err := l.LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if previous, ok := sources[asset]; ok {
			l.log.Warn().
				Str("asset", asset).
				Str("replaced", previous).
				Str("file", entry.Name()).
				Msg("Price files share an asset identifier, later file wins")
		}
		sources[asset] = entry.Name()
		table[asset] = points
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("no price files found in %s", dir)
	}

	l.log.Info().Int("assets", len(table)).Str("dir", dir).Msg("Loaded price files")
	return table, nil
}

// LoadFile reads one price file.
func (l *Loader) LoadFile(path string) ([]domain.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	points, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	l.log.Debug().Str("file", filepath.Base(path)).Int("rows", len(points)).Msg("Parsed price file")
	return points, nil
}

// Parse reads CSV rows into price points sorted by date. Rows with an empty
// close are skipped; a repeated date keeps the last row.
func Parse(r io.Reader) ([]domain.PricePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	dateCol, closeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("header must contain Date and Close columns")
	}

	byDate := make(map[time.Time]float64)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) <= dateCol || len(record) <= closeCol {
			continue
		}

		raw := strings.TrimSpace(record[closeCol])
		if raw == "" {
			continue
		}
		date, err := ParseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close %q", line, raw)
		}
		byDate[date] = price
	}

	points := make([]domain.PricePoint, 0, len(byDate))
	for date, price := range byDate {
		points = append(points, domain.PricePoint{Date: date, Close: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// ParseDate accepts a YYYY-MM-DD date, optionally followed by a time and
// zone offset. Only the calendar date is kept, in UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) < len("2006-01-02") {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	t, err := time.Parse("2006-01-02", value[:10])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t.UTC(), nil
}
