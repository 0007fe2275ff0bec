// Package state implements crash-safe persistence of the day's trade
// plan: trade_status.json, written atomically after every transition
// and reconciled against the broker on startup. Grounded on the
// teacher's internal/bot/recovery.go "discover positions, match, flag
// orphans" idiom, adapted from exchange position recovery to this
// engine's single daily trade_status.json.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"fxtrader/internal/models"
)

// fileRecord is the on-disk shape of trade_status.json: a date stamp
// (to detect a stale file from a previous day) and the plan keyed by
// trade id.
type fileRecord struct {
	Date   string                  `json:"date"`
	Trades map[int]tradeRecord     `json:"trades"`
}

// tradeRecord mirrors models.Trade's runtime fields. Prices are
// serialized as strings (decimal.Decimal already marshals this way) to
// preserve precision across the JSON round trip.
type tradeRecord struct {
	Status               models.Status   `json:"status"`
	EntryOrderID         string          `json:"entry_order_id"`
	ExitOrderID          string          `json:"exit_order_id"`
	PositionID           string          `json:"position_id"`
	EntryFillPrice       string          `json:"entry_fill_price"`
	ExitFillPrice        string          `json:"exit_fill_price"`
	EntryFilledAmount    string          `json:"entry_filled_amount"`
	EntryTimestampActual time.Time       `json:"entry_timestamp_actual"`
	ExitTimestampActual  time.Time       `json:"exit_timestamp_actual"`
	PipsProfit           string          `json:"pips_profit"`
}

// Store owns trade_status.json. All writes are serialized, and each
// write goes through a temp file + rename so a crash mid-write never
// leaves a corrupt file behind, per spec.md §4.6.
type Store struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore builds a Store backed by the file at path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Save writes the full set of trades to disk atomically, stamped with
// today's date.
func (s *Store) Save(trades []*models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := fileRecord{
		Date:   time.Now().Format("20060102"),
		Trades: make(map[int]tradeRecord, len(trades)),
	}
	for _, t := range trades {
		record.Trades[t.ID] = tradeRecord{
			Status:               t.Status,
			EntryOrderID:         t.EntryOrderID,
			ExitOrderID:          t.ExitOrderID,
			PositionID:           t.PositionID,
			EntryFillPrice:       t.EntryFillPrice.String(),
			ExitFillPrice:        t.ExitFillPrice.String(),
			EntryFilledAmount:    t.EntryFilledAmount.String(),
			EntryTimestampActual: t.EntryTimestampActual,
			ExitTimestampActual:  t.ExitTimestampActual,
			PipsProfit:           t.PipsProfit.String(),
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal trade_status.json: %w", err)
	}

	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".trade_status-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: rename temp file into place: %w", err)
	}
	return nil
}

// Load reads trade_status.json and merges its records into trades by
// id. If the file is absent or stamped with a date other than today,
// Load returns (false, nil): there is nothing to recover.
func (s *Store) Load(trades []*models.Trade) (recovered bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("state: read trade_status.json: %w", err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false, fmt.Errorf("state: parse trade_status.json: %w", err)
	}

	if record.Date != time.Now().Format("20060102") {
		s.logger.Info("state: discarding stale trade_status.json from a previous day", zap.String("file_date", record.Date))
		return false, nil
	}

	byID := make(map[int]*models.Trade, len(trades))
	for _, t := range trades {
		byID[t.ID] = t
	}

	for id, rec := range record.Trades {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if err := mergeRecord(t, rec); err != nil {
			return false, fmt.Errorf("state: merge trade %d: %w", id, err)
		}
	}
	return true, nil
}

// Delete removes trade_status.json on clean completion of all trades,
// per spec.md §4.6.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: delete trade_status.json: %w", err)
	}
	return nil
}
