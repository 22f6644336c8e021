package repository

import "fmt"

// Schema returns the idempotent DDL for the bar and cycle tables.
func Schema(database, barsTable, cyclesTable string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            tf LowCardinality(String),
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            volume Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, tf, ts)`, database, barsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts DateTime64(3, 'UTC'),
            bar_time DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            direction LowCardinality(String),
            confidence Float64,
            agreement Float64,
            weighted_score Float64,
            risk LowCardinality(String),
            active_count UInt8,
            executed UInt8,
            decision_id String,
            suppressed LowCardinality(String),
            signals String,
            errors String,
            duration_ms Int64
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts)`, database, cyclesTable),
	}
}
