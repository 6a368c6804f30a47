package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	pkgch "ClimaPulse/pkg/clickhouse"
	applogger "ClimaPulse/pkg/logger"
)

const historyTable = "datapoints"

// HistorySchema returns the DDL for the history table in database.
func HistorySchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts             DateTime64(3, 'UTC'),
            indicator      LowCardinality(String),
            region         String,
            value          Float64,
            change         Float64,
            change_percent Float64,
            source         LowCardinality(String),
            reliability    LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (indicator, region, ts)`, database, historyTable),
	}
}

// ClickHouseHistory stores every refreshed DataPoint per topic.
type ClickHouseHistory struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseHistory(ch *pkgch.Client, l *applogger.Logger) domrepo.HistoryStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseHistory{
		ch:    ch,
		db:    ch.DB(),
		table: ch.Database() + "." + historyTable,
		l:     l.With(applogger.String("component", "history")),
	}
}

func (s *ClickHouseHistory) Record(ctx context.Context, indicator models.Indicator, region string, dp models.DataPoint) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, indicator, region, value, change, change_percent, source, reliability) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		dp.Timestamp.UTC(),
		string(indicator),
		models.NormalizeRegion(region),
		dp.Value,
		dp.Change,
		dp.ChangePercent,
		string(dp.Source),
		string(dp.Reliability),
	)
	if err != nil {
		return fmt.Errorf("insert datapoint: %w", err)
	}
	return nil
}

// Recent returns the newest limit points of a topic in ascending time order.
func (s *ClickHouseHistory) Recent(ctx context.Context, indicator models.Indicator, region string, limit int) ([]models.DataPoint, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, value, change, change_percent, source, reliability
        FROM %s
        WHERE indicator = ? AND region = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), string(indicator), models.NormalizeRegion(region), limit)
	if err != nil {
		s.l.Error("clickhouse recent query error",
			applogger.String("indicator", string(indicator)),
			applogger.String("region", region),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]models.DataPoint, 0, limit)
	for rows.Next() {
		var (
			dp          models.DataPoint
			source, rel string
		)
		if err := rows.Scan(&dp.Timestamp, &dp.Value, &dp.Change, &dp.ChangePercent, &source, &rel); err != nil {
			return nil, fmt.Errorf("scan datapoint: %w", err)
		}
		dp.Source, dp.Reliability = models.Source(source), models.Reliability(rel)
		out = append(out, dp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)

	s.l.Debug("clickhouse recent ok",
		applogger.String("indicator", string(indicator)),
		applogger.String("region", region),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Close releases the clickhouse pool.
func (s *ClickHouseHistory) Close() error {
	if s.ch == nil {
		return nil
	}
	return s.ch.Close()
}

func reverse(dps []models.DataPoint) {
	for i, j := 0, len(dps)-1; i < j; i, j = i+1, j-1 {
		dps[i], dps[j] = dps[j], dps[i]
	}
}
