package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Narrative is a generated text insight for a topic.
type Narrative struct {
	Indicator   Indicator   `json:"indicator"`
	Region      string      `json:"region"`
	Text        string      `json:"text"`
	Source      Source      `json:"source"`
	Reliability Reliability `json:"reliability"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

func (n *Narrative) Validate() error {
	if strings.TrimSpace(n.Text) == "" {
		return errors.New("narrative text is empty")
	}
	return nil
}

type SimilarRegion struct {
	Region    string  `json:"region"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
}

// SimilarRegions holds regions whose indicator profile resembles the requested one.
type SimilarRegions struct {
	Indicator   Indicator       `json:"indicator"`
	Region      string          `json:"region"`
	Results     []SimilarRegion `json:"results"`
	Source      Source          `json:"source"`
	Reliability Reliability     `json:"reliability"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

func (s *SimilarRegions) Validate() error {
	for i, r := range s.Results {
		if strings.TrimSpace(r.Region) == "" {
			return fmt.Errorf("result %d: region is empty", i)
		}
		if r.Score < 0 || r.Score > 1 {
			return fmt.Errorf("result %d: score %.4f outside [0,1]", i, r.Score)
		}
	}
	return nil
}

// Table is the answer to a free-form structured query.
type Table struct {
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	Source      Source           `json:"source"`
	Reliability Reliability      `json:"reliability"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Validate rejects rows carrying columns that were not requested.
func (t *Table) Validate() error {
	declared := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		declared[c] = struct{}{}
	}
	for i, row := range t.Rows {
		for col := range row {
			if _, ok := declared[col]; !ok {
				return fmt.Errorf("row %d: undeclared column %q", i, col)
			}
		}
	}
	return nil
}
