// Package decisionlog 持久化信号融合的方向冲突记录，便于事后排查。
package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ConflictRecord 记录一次策略/AI 方向分歧及其裁决结果。
type ConflictRecord struct {
	ID                 int64   `json:"id"`
	Timestamp          int64   `json:"ts"`
	Symbol             string  `json:"symbol"`
	StrategyDirection  string  `json:"strategy_direction"`
	AIDirection        string  `json:"ai_direction"`
	StrategyConfidence float64 `json:"strategy_confidence"`
	AIConfidence       float64 `json:"ai_confidence"`
	StrategyScore      float64 `json:"strategy_score"`
	AIScore            float64 `json:"ai_score"`
	Resolution         string  `json:"resolution"` // conservative_hold | conflict_resolved
	WinningSource      string  `json:"winning_source,omitempty"`
	FusedDirection     string  `json:"fused_direction"`
	FusedConfidence    float64 `json:"fused_confidence"`
	Note               string  `json:"note,omitempty"`
}

// Store 基于 SQLite 的冲突日志。
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New 初始化存储并建表。
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("conflict log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			strategy_direction TEXT,
			ai_direction TEXT,
			strategy_confidence REAL,
			ai_confidence REAL,
			strategy_score REAL,
			ai_score REAL,
			resolution TEXT,
			winning_source TEXT,
			fused_direction TEXT,
			fused_confidence REAL,
			note TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_conflicts_symbol_ts ON signal_conflicts(symbol, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert 写入一条冲突记录。
func (s *Store) Insert(ctx context.Context, rec ConflictRecord) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("conflict log 未初始化")
	}
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO signal_conflicts
			(ts, symbol, strategy_direction, ai_direction, strategy_confidence, ai_confidence,
			 strategy_score, ai_score, resolution, winning_source, fused_direction, fused_confidence,
			 note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, rec.Symbol, rec.StrategyDirection, rec.AIDirection,
		rec.StrategyConfidence, rec.AIConfidence, rec.StrategyScore, rec.AIScore,
		rec.Resolution, rec.WinningSource, rec.FusedDirection, rec.FusedConfidence,
		rec.Note, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// ListRecent 返回某符号最新的冲突记录，symbol 为空时不过滤。
func (s *Store) ListRecent(ctx context.Context, symbol string, limit int) ([]ConflictRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("conflict log 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, ts, symbol, strategy_direction, ai_direction, strategy_confidence,
		ai_confidence, strategy_score, ai_score, resolution, winning_source,
		fused_direction, fused_confidence, note
		FROM signal_conflicts`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConflictRecord
	for rows.Next() {
		var r ConflictRecord
		var winning, note sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Symbol, &r.StrategyDirection, &r.AIDirection,
			&r.StrategyConfidence, &r.AIConfidence, &r.StrategyScore, &r.AIScore,
			&r.Resolution, &winning, &r.FusedDirection, &r.FusedConfidence, &note); err != nil {
			return nil, err
		}
		r.WinningSource = winning.String
		r.Note = note.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
