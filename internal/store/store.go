package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
)

var _header = []string{"open_time", "open", "high", "low", "close", "volume", "close_time"}

// Store reads and writes per-(symbol,timeframe) candle files under
// {dataDir}/{symbol}/{timeframe}.csv.
type Store struct {
	dataDir string
	logger  logger.Logger
}

func NewStore(dataDir string, logger logger.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		logger:  logger,
	}
}

func (s *Store) Path(symbol, timeframe string) string {
	return filepath.Join(s.dataDir, symbol, timeframe+".csv")
}

// Load reads a unit's history. A missing file is an empty series, not an
// error. Rows whose required numeric fields fail to parse are dropped and
// counted, never fatal.
func (s *Store) Load(symbol, timeframe string) (model.Series, int, error) {
	path := s.Path(symbol, timeframe)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("can't open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var (
		out     model.Series
		dropped int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		c, ok := parseRow(record)
		if !ok {
			if len(record) > 0 && record[0] == _header[0] {
				continue
			}
			dropped++
			continue
		}
		out = append(out, c)
	}
	if dropped > 0 {
		s.logger.Warnf("%s %s: dropped %d unparsable rows", symbol, timeframe, dropped)
	}
	return out, dropped, nil
}

func parseRow(record []string) (model.Candle, bool) {
	if len(record) < 6 {
		return model.Candle{}, false
	}
	openTime, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil || openTime <= 0 {
		return model.Candle{}, false
	}
	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return model.Candle{}, false
		}
		values[i] = v
	}
	c := model.Candle{
		OpenTime: openTime,
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}
	if len(record) >= 7 {
		// close_time is optional, a bad value doesn't drop the row
		if closeTime, err := strconv.ParseInt(record[6], 10, 64); err == nil {
			c.CloseTime = closeTime
		}
	}
	return c, true
}

// WriteAtomic serializes the series to a temp file in the destination
// directory, flushes and fsyncs it, then renames it over the destination.
// The destination is always either the previous complete file or the new
// complete file, even if the process dies mid-write.
func (s *Store) WriteAtomic(symbol, timeframe string, series model.Series) error {
	path := s.Path(symbol, timeframe)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("can't create dir for %s: %w", path, err)
	}

	tmp, err := writeTemp(path, series)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("can't rename %s: %w", tmp, err)
	}
	return nil
}

func writeTemp(path string, series model.Series) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("can't create temp file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(_header); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("can't write header: %w", err)
	}
	for _, c := range series {
		record := []string{
			strconv.FormatInt(c.OpenTime, 10),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
			strconv.FormatInt(c.CloseTime, 10),
		}
		if err := w.Write(record); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("can't write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("can't flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("can't sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("can't close temp file: %w", err)
	}
	return f.Name(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
