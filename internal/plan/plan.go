// Package plan defines the PlanSource contract the engine consumes to
// load the day's trades, and ships a minimal JSON-backed
// implementation for operators who don't have a CSV loader. The CSV
// format itself is intentionally unspecified.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fxtrader/internal/models"
)

// Source loads the day's plan of trades from some external
// representation.
type Source interface {
	Load(path string) ([]*models.Trade, error)
}

// entry is the on-disk shape of one plan row.
type entry struct {
	ID              int      `json:"id"`
	Pair            string   `json:"pair"`
	Side            string   `json:"side"`
	LotSize         string   `json:"lot_size"`
	EntryTime       string   `json:"entry_time"` // "HH:MM:SS"
	ExitTime        string   `json:"exit_time"`
	AllowedWeekdays []string `json:"allowed_weekdays,omitempty"`
}

// JSONSource loads a plan from a JSON array of entries, the minimal
// stand-in for the CSV format spec.md leaves unspecified.
type JSONSource struct{}

// Load reads and parses path into Trade values. UIC/AssetType/Decimals
// are left zero; the caller enriches them with a per-trade instrument
// lookup before scheduling.
func (JSONSource) Load(path string) ([]*models.Trade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("plan: parse %s: %w", path, err)
	}

	trades := make([]*models.Trade, 0, len(entries))
	for _, e := range entries {
		t, err := fromEntry(e)
		if err != nil {
			return nil, fmt.Errorf("plan: trade %d: %w", e.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func fromEntry(e entry) (*models.Trade, error) {
	lot, err := decimal.NewFromString(e.LotSize)
	if err != nil {
		return nil, fmt.Errorf("lot_size: %w", err)
	}

	entryOffset, err := parseTimeOfDay(e.EntryTime)
	if err != nil {
		return nil, fmt.Errorf("entry_time: %w", err)
	}
	exitOffset, err := parseTimeOfDay(e.ExitTime)
	if err != nil {
		return nil, fmt.Errorf("exit_time: %w", err)
	}

	side := models.SideBuy
	switch e.Side {
	case "Buy", "buy":
		side = models.SideBuy
	case "Sell", "sell":
		side = models.SideSell
	default:
		return nil, fmt.Errorf("side: unrecognized value %q", e.Side)
	}

	var weekdays []time.Weekday
	for _, w := range e.AllowedWeekdays {
		wd, err := parseWeekday(w)
		if err != nil {
			return nil, err
		}
		weekdays = append(weekdays, wd)
	}

	return &models.Trade{
		ID:              e.ID,
		Pair:            e.Pair,
		Side:            side,
		LotSize:         lot,
		EntryTime:       entryOffset,
		ExitTime:        exitOffset,
		AllowedWeekdays: weekdays,
		Status:          models.StatusPending,
	}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	days := map[string]time.Weekday{
		"Sunday": time.Sunday, "Monday": time.Monday, "Tuesday": time.Tuesday,
		"Wednesday": time.Wednesday, "Thursday": time.Thursday, "Friday": time.Friday, "Saturday": time.Saturday,
	}
	wd, ok := days[s]
	if !ok {
		return 0, fmt.Errorf("allowed_weekdays: unrecognized value %q", s)
	}
	return wd, nil
}
