package database

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rschmaelzle/aeneas/internal/logger"
	"github.com/rschmaelzle/aeneas/internal/synth"
)

// DB 是合成历史的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.aeneas/history.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".aeneas", "history.db")
		} else {
			dbPath = "./history.db"
		}
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Debugf("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 合成记录表
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			text_file TEXT NOT NULL,
			destination TEXT NOT NULL,
			total_duration REAL NOT NULL,
			early_stop BOOLEAN DEFAULT 0,
			fragments INTEGER DEFAULT 0,
			characters INTEGER DEFAULT 0,
			fallbacks INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		// 锚点表
		`CREATE TABLE IF NOT EXISTS anchors (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			fragment_id TEXT NOT NULL,
			begin_seconds REAL NOT NULL,
			end_seconds REAL NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`); err != nil {
		logger.Warnf("[database] 创建索引失败: %v", err)
	}

	logger.Debugf("[database] 数据库迁移完成")
	return nil
}

// Run 是一条合成记录。
type Run struct {
	ID            string
	TextFile      string
	Destination   string
	TotalDuration time.Duration
	EarlyStop     bool
	Fragments     int
	Characters    int
	Fallbacks     int
	CreatedAt     time.Time
}

// RecordRun 在一个事务中保存合成结果及其锚点，返回记录 ID。
func (db *DB) RecordRun(textFile, destination string, r *synth.Result) (string, error) {
	if r == nil {
		return "", fmt.Errorf("[database] 合成结果为空")
	}
	id := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("[database] 开启事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, text_file, destination, total_duration, early_stop, fragments, characters, fallbacks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, textFile, destination, r.TotalDuration.Seconds(), r.EarlyStop,
		r.Fragments, r.Characters, r.FallbackCount, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("[database] 保存合成记录失败: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO anchors (run_id, position, fragment_id, begin_seconds, end_seconds)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("[database] 准备锚点语句失败: %w", err)
	}
	defer stmt.Close()

	for i, a := range r.Anchors {
		if _, err := stmt.Exec(id, i, a.FragmentID, a.BeginSeconds(), a.EndSeconds()); err != nil {
			return "", fmt.Errorf("[database] 保存锚点失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("[database] 提交事务失败: %w", err)
	}
	return id, nil
}

// ListRuns 按时间倒序返回最近的 limit 条记录，limit <= 0 时返回全部。
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT id, text_file, destination, total_duration, early_stop,
		fragments, characters, fallbacks, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("[database] 查询合成记录失败: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			seconds float64
		)
		if err := rows.Scan(&run.ID, &run.TextFile, &run.Destination, &seconds, &run.EarlyStop,
			&run.Fragments, &run.Characters, &run.Fallbacks, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("[database] 读取合成记录失败: %w", err)
		}
		run.TotalDuration = seconds2duration(seconds)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunAnchors 返回某次合成的锚点，按访问顺序排列。
func (db *DB) RunAnchors(runID string) ([]synth.Anchor, error) {
	rows, err := db.Query(`SELECT fragment_id, begin_seconds, end_seconds
		FROM anchors WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("[database] 查询锚点失败: %w", err)
	}
	defer rows.Close()

	var anchors []synth.Anchor
	for rows.Next() {
		var (
			a          synth.Anchor
			begin, end float64
		)
		if err := rows.Scan(&a.FragmentID, &begin, &end); err != nil {
			return nil, fmt.Errorf("[database] 读取锚点失败: %w", err)
		}
		a.Begin = seconds2duration(begin)
		a.End = seconds2duration(end)
		anchors = append(anchors, a)
	}
	return anchors, rows.Err()
}

func seconds2duration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
