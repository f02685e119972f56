package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

// Client is the single handle to the academic database. It is passed
// explicitly to every component that reads or writes data.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, persistErr("open database", err)
	}

	// One connection serialises writers; WAL keeps readers off the writer's back.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, persistErr(fmt.Sprintf("apply %q", p), err)
		}
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	if err := c.db.Ping(); err != nil {
		return persistErr("ping database", err)
	}
	return nil
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subject_records (
		subject_code TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		plan_code TEXT,
		subject_name TEXT,
		credits INTEGER,
		enrolled INTEGER NOT NULL,
		participated INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		performance_rate REAL NOT NULL,
		success_rate REAL NOT NULL,
		absenteeism_rate REAL NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (subject_code, academic_year, semester)
	);
	CREATE INDEX IF NOT EXISTS idx_records_year ON subject_records(academic_year);

	CREATE TABLE IF NOT EXISTS course_info (
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		plan_code TEXT NOT NULL DEFAULT '',
		plan_title TEXT,
		report_date TEXT,
		source TEXT,
		ingested_at INTEGER NOT NULL,
		PRIMARY KEY (academic_year, semester, plan_code)
	);

	CREATE TABLE IF NOT EXISTS student_profiles (
		subject_code TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		total_enrolled INTEGER NOT NULL,
		first_time INTEGER NOT NULL,
		partial_dedication INTEGER NOT NULL,
		PRIMARY KEY (subject_code, academic_year, semester)
	);

	CREATE TABLE IF NOT EXISTS historical_rates (
		subject_code TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		report_year TEXT,
		PRIMARY KEY (subject_code, academic_year, semester, metric)
	);

	CREATE TABLE IF NOT EXISTS faculty_snapshots (
		subject_code TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		faculty TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (subject_code, academic_year, semester)
	);

	CREATE TABLE IF NOT EXISTS evaluation_snapshots (
		subject_code TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		semester TEXT NOT NULL,
		methods TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (subject_code, academic_year, semester)
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		trend_mode TEXT,
		metric TEXT,
		subject_filter TEXT,
		semester TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		subjects_total INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT,
		failures TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON analysis_runs(status, started_at);

	CREATE TABLE IF NOT EXISTS change_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		subject_code TEXT NOT NULL,
		year1 TEXT NOT NULL,
		year2 TEXT NOT NULL,
		kind TEXT NOT NULL,
		added TEXT NOT NULL,
		removed TEXT NOT NULL,
		changed INTEGER NOT NULL,
		magnitude REAL,
		FOREIGN KEY (analysis_id) REFERENCES analysis_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_events_analysis ON change_events(analysis_id, kind, subject_code);

	CREATE TABLE IF NOT EXISTS correlation_results (
		analysis_id TEXT NOT NULL,
		subject_code TEXT NOT NULL,
		factor TEXT NOT NULL,
		status TEXT NOT NULL,
		periods_with_change INTEGER NOT NULL,
		periods_without_change INTEGER NOT NULL,
		mean_delta_with_change REAL,
		mean_delta_without_change REAL,
		impact_diff REAL,
		t_statistic REAL,
		p_value REAL,
		significant INTEGER,
		cohens_d REAL,
		effect_size TEXT,
		impact_class TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (analysis_id, subject_code, factor),
		FOREIGN KEY (analysis_id) REFERENCES analysis_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS trend_results (
		analysis_id TEXT NOT NULL,
		subject_code TEXT NOT NULL,
		metric TEXT NOT NULL,
		status TEXT NOT NULL,
		points INTEGER NOT NULL,
		first_year TEXT,
		last_year TEXT,
		first_value REAL,
		last_value REAL,
		slope REAL,
		intercept REAL,
		r_squared REAL,
		slope_p_value REAL,
		mann_kendall_trend TEXT,
		mann_kendall_p_value REAL,
		theil_sen_slope REAL,
		year_over_year TEXT NOT NULL,
		classification TEXT,
		mode TEXT NOT NULL,
		series TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (analysis_id, subject_code, metric),
		FOREIGN KEY (analysis_id) REFERENCES analysis_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		subject_code TEXT,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		supporting_metrics TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES analysis_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_insights_analysis ON insights(analysis_id, scope);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return persistErr("initialize schema", err)
	}

	// Databases created before these columns existed.
	added := []struct{ table, column, decl string }{
		{"analysis_runs", "subject_filter", "TEXT"},
		{"analysis_runs", "semester", "TEXT"},
		{"trend_results", "series", "TEXT"},
	}
	for _, a := range added {
		if err := c.ensureColumn(a.table, a.column, a.decl); err != nil {
			return err
		}
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) ensureColumn(table, column, decl string) error {
	rows, err := c.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return persistErr("inspect "+table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return persistErr("inspect "+table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return persistErr("inspect "+table, err)
	}
	rows.Close()

	if _, err := c.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return persistErr("add column "+table+"."+column, err)
	}
	logger.Info("Schema column added", zap.String("table", table), zap.String("column", column))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func unmarshalList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	json.Unmarshal([]byte(raw), &out)
	return out
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
