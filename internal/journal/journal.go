// Package journal 把拍卖任务结果落到本地 sqlite，供控制面查询与事后对账。
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/engine"
	"github.com/upmaker/jitgo/pkg/logger"
)

// Journal sqlite 流水。写入在调度器的任务 goroutine 里发生，
// modernc sqlite 单连接即可，避免 WAL 下的写竞争。
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）流水库
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS auction_results (
  id TEXT PRIMARY KEY,
  auction_key TEXT NOT NULL,
  market TEXT NOT NULL,
  taker TEXT NOT NULL,
  side TEXT NOT NULL,
  result TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  signature TEXT,
  error TEXT,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_auction_results_ts ON auction_results(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_auction_results_market ON auction_results(market, ts DESC);`,
	}
	for _, q := range stmts {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// Record 实现 engine.Recorder。落库失败只记日志，不影响撮合主路径。
func (j *Journal) Record(task engine.Task, out engine.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var errText string
	if out.Err != nil {
		errText = out.Err.Error()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO auction_results (id, auction_key, market, taker, side, result, attempts, signature, error, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		uuid.NewString(),
		string(task.Key),
		task.Order.Market.String(),
		task.Order.Taker,
		task.Order.Side.String(),
		out.Result.String(),
		out.Attempts,
		out.Signature,
		errText,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logger.WithField("component", "journal").Errorf("record auction result: %v", err)
	}
}

// Entry 一条流水记录
type Entry struct {
	ID         string `json:"id"`
	AuctionKey string `json:"auction_key"`
	Market     string `json:"market"`
	Taker      string `json:"taker"`
	Side       string `json:"side"`
	Result     string `json:"result"`
	Attempts   int    `json:"attempts"`
	Signature  string `json:"signature,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"ts"`
}

// Recent 最近 n 条流水，新的在前
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, auction_key, market, taker, side, result, attempts, signature, error, ts
FROM auction_results ORDER BY ts DESC LIMIT ?;`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AuctionKey, &e.Market, &e.Taker, &e.Side,
			&e.Result, &e.Attempts, &e.Signature, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FillCount 指定结果的记录数（状态接口用）
func (j *Journal) FillCount(ctx context.Context, result engine.Result) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auction_results WHERE result = ?;`, result.String()).Scan(&n)
	return n, err
}

// RecentFillsFor 某市场最近成交（监控面板用）
func (j *Journal) RecentFillsFor(ctx context.Context, market domain.MarketID, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, auction_key, market, taker, side, result, attempts, signature, error, ts
FROM auction_results WHERE market = ? AND result = 'filled'
ORDER BY ts DESC LIMIT ?;`, market.String(), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AuctionKey, &e.Market, &e.Taker, &e.Side,
			&e.Result, &e.Attempts, &e.Signature, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
