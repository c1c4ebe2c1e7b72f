package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikey/mail-trust-filter/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultLimit caps history queries that do not set a limit
const DefaultLimit = 100

// SQLiteStore implements core.HistoryRepository backed by a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS history (
	entry_key    TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	sender       TEXT NOT NULL DEFAULT '',
	search_text  TEXT NOT NULL DEFAULT '',
	trust_score  INTEGER NOT NULL,
	category     TEXT NOT NULL,
	threat_level TEXT NOT NULL,
	received_at  INTEGER NOT NULL DEFAULT 0,
	analyzed_at  INTEGER NOT NULL,
	verdict      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_analyzed_at ON history(analyzed_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores a verdict, replacing an earlier entry with the same key.
// Entries without a key fall back to the message ID.
func (s *SQLiteStore) Record(ctx context.Context, entry core.HistoryEntry) error {
	v := entry.Verdict
	key := entry.Key
	if key == "" {
		key = v.ID
	}
	data, err := core.EncodeVerdict(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	var receivedAt int64
	if !v.ReceivedAt.IsZero() {
		receivedAt = v.ReceivedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (entry_key, message_id, subject, sender, search_text, trust_score, category, threat_level, received_at, analyzed_at, verdict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_key) DO UPDATE SET
			message_id   = excluded.message_id,
			subject      = excluded.subject,
			sender       = excluded.sender,
			search_text  = excluded.search_text,
			trust_score  = excluded.trust_score,
			category     = excluded.category,
			threat_level = excluded.threat_level,
			received_at  = excluded.received_at,
			analyzed_at  = excluded.analyzed_at,
			verdict      = excluded.verdict
	`, key, v.ID, v.Subject, v.Sender, searchText(v), v.TrustScore, string(v.Category), string(v.ThreatLevel),
		receivedAt, entry.AnalyzedAt.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("record history for %s: %w", v.ID, err)
	}
	return nil
}

// List returns history entries matching the query
func (s *SQLiteStore) List(ctx context.Context, q core.HistoryQuery) ([]core.HistoryEntry, error) {
	var where []string
	var args []interface{}

	// search_text is folded in Go so non-ASCII terms match the same way as core.Search
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		where = append(where, "instr(search_text, ?) > 0")
		args = append(args, term)
	}

	switch category := strings.TrimSpace(q.Category); {
	case category == "" || strings.EqualFold(category, core.FilterAll):
	case strings.EqualFold(category, core.FilterThreats):
		where = append(where, "threat_level <> ?")
		args = append(args, string(core.ThreatSafe))
	default:
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, category)
	}

	query := "SELECT entry_key, verdict, analyzed_at FROM history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(q.SortBy) + " LIMIT ?"

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var key, data string
		var analyzedAt int64
		if err := rows.Scan(&key, &data, &analyzedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		v, err := core.DecodeVerdict([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decode history verdict: %w", err)
		}
		entries = append(entries, core.HistoryEntry{Key: key, Verdict: v, AnalyzedAt: time.UnixMilli(analyzedAt)})
	}
	return entries, rows.Err()
}

// Count returns the number of recorded verdicts
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM history").Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func orderBy(sortBy string) string {
	switch strings.ToLower(sortBy) {
	case core.SortByDate:
		return "received_at DESC, analyzed_at DESC, message_id, entry_key"
	case core.SortByTrust:
		return "trust_score DESC, analyzed_at DESC, message_id, entry_key"
	case core.SortByThreat:
		return `CASE threat_level WHEN 'Ultra Threat' THEN 3 WHEN 'Suspicious' THEN 2 WHEN 'Safe' THEN 1 ELSE 0 END DESC, analyzed_at DESC, message_id, entry_key`
	default:
		return "analyzed_at DESC, message_id, entry_key"
	}
}

// searchText holds the lower-cased subject and sender, separated so a term cannot span both
func searchText(v core.Verdict) string {
	return strings.ToLower(v.Subject) + "\n" + strings.ToLower(v.Sender)
}
