package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookload/internal/runner"
	"bookload/internal/stats"

	"go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"
)

var ErrNotFound = errors.New("run not found")

// ThresholdOutcome is a threshold result as stored in history.
type ThresholdOutcome struct {
	Rule   string  `json:"rule"`
	Value  float64 `json:"value"`
	Passed bool    `json:"passed"`
}

// HistoryItem is the stored summary of one run. Raw samples are not kept.
type HistoryItem struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	BaseURL    string                 `json:"base_url"`
	Elapsed    time.Duration          `json:"elapsed_ns"`
	Passed     bool                   `json:"passed"`
	Aborted    bool                   `json:"aborted"`
	Journeys   []runner.JourneyStatus `json:"journeys"`
	Steps      []stats.Summary        `json:"steps"`
	Thresholds []ThresholdOutcome     `json:"thresholds"`
}

// FromReport converts a run report into a history entry.
func FromReport(rep runner.Report, baseURL string) HistoryItem {
	item := HistoryItem{
		ID:        rep.RunID,
		Timestamp: rep.StartedAt,
		BaseURL:   baseURL,
		Elapsed:   rep.Elapsed,
		Passed:    rep.Passed,
		Aborted:   rep.Aborted,
		Journeys:  rep.Journeys,
		Steps:     rep.Steps,
	}
	for _, r := range rep.Thresholds {
		item.Thresholds = append(item.Thresholds, ThresholdOutcome{Rule: r.Rule.String(), Value: r.Value, Passed: r.Passed})
	}
	return item
}

// Store keeps run history in a bbolt file. Run IDs are time-ordered, so key
// order is run order.
type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.bookload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bookload", "history.db"), nil
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string { return s.filePath }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(item HistoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}

		return b.Put([]byte(item.ID), data)
	})
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			items = append(items, item)
		}
		return nil
	})

	return items, err
}

// Get looks a run up by its ID or by a unique prefix of it.
func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		prefix := []byte(id)
		k, v := c.Seek(prefix)
		if k == nil || !strings.HasPrefix(string(k), id) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if string(k) != id {
			if k2, _ := c.Next(); k2 != nil && strings.HasPrefix(string(k2), id) {
				return fmt.Errorf("run prefix %q is ambiguous", id)
			}
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}
