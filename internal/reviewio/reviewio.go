// Package reviewio reads review tables from CSV and JSON files.
package reviewio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/errors"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Columns maps review fields to CSV header names. Only Text is required.
type Columns struct {
	Text      string
	Sentiment string
	Score     string
	ID        string
	Timestamp string
}

// ColumnsFromConfig reads the CSV column names from the input section.
func ColumnsFromConfig(cfg config.InputConfig) Columns {
	return Columns{
		Text:      cfg.TextColumn,
		Sentiment: cfg.SentimentColumn,
		Score:     cfg.ScoreColumn,
		ID:        cfg.IDColumn,
		Timestamp: cfg.TimestampColumn,
	}
}

// LoadFile picks the reader by extension: .json for JSON, anything else
// is parsed as CSV.
func LoadFile(path string, cols Columns) ([]pipeline.Review, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ReadJSON(f)
	}
	return ReadCSV(f, cols)
}

// ReadCSV reads a header row followed by one review per record. Columns
// absent from the header are left empty; a missing text column is an
// error.
func ReadCSV(r io.Reader, cols Columns) ([]pipeline.Review, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty CSV input", apperrors.ErrInvalidInput)
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	textIdx, ok := index[cols.Text]
	if !ok {
		return nil, fmt.Errorf("%w: CSV has no %q column", apperrors.ErrInvalidInput, cols.Text)
	}
	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}
	sentIdx, scoreIdx, idIdx, tsIdx := lookup(cols.Sentiment), lookup(cols.Score), lookup(cols.ID), lookup(cols.Timestamp)

	var reviews []pipeline.Review
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		field := func(i int) string {
			if i < 0 || i >= len(record) {
				return ""
			}
			return record[i]
		}
		review := pipeline.Review{
			ID:        strings.TrimSpace(field(idIdx)),
			Text:      field(textIdx),
			Sentiment: strings.TrimSpace(field(sentIdx)),
			Score:     parseScore(field(scoreIdx)),
		}
		ts, err := parseTimestamp(field(tsIdx))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		review.Timestamp = ts
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// ReadJSON accepts either a bare array of reviews or {"reviews": [...]}.
func ReadJSON(r io.Reader) ([]pipeline.Review, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading JSON: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var reviews []pipeline.Review
		if err := json.Unmarshal(data, &reviews); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		return reviews, nil
	}
	var wrapped struct {
		Reviews []pipeline.Review `json:"reviews"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return wrapped.Reviews, nil
}

// parseScore returns nil for blank, unparsable or non-finite values.
func parseScore(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseTimestamp(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}
