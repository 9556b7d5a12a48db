package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// SQLiteTable implements Table on a single SQLite table with a JSON attribute column.
// Writes are serialised by a mutex; the database runs in WAL mode.
type SQLiteTable struct {
	db    *sql.DB
	table string
	mu    sync.RWMutex
}

// NewSQLiteTable opens (and creates if needed) the table in the SQLite file at dbPath.
func NewSQLiteTable(dbPath, table string, logger *zap.Logger) (*SQLiteTable, error) {
	if err := validTableName(table); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	t := &SQLiteTable{db: db, table: table}
	if err := t.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("sqlite table ready", zap.String("path", dbPath), zap.String("table", table))
	return t, nil
}

func (t *SQLiteTable) createTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		attrs TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (pk, sk)
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_sk ON %[1]s(sk);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_type ON %[1]s(type);
	`, t.table)
	_, err := t.db.Exec(query)
	return err
}

// Get returns the item stored at key.
func (t *SQLiteTable) Get(ctx context.Context, key Key) (*Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.get(ctx, key)
}

func (t *SQLiteTable) get(ctx context.Context, key Key) (*Item, error) {
	query := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE pk = ? AND sk = ?`, t.table)
	item, err := scanItem(t.db.QueryRowContext(ctx, query, key.PK, key.SK))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	return item, nil
}

// Query returns the partition's items with the given SK prefix, ordered by SK.
func (t *SQLiteTable) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	query := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE pk = ? AND sk LIKE ? ESCAPE '\' ORDER BY sk`, t.table)
	rows, err := t.db.QueryContext(ctx, query, pk, likePrefix(skPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", pk, err)
	}
	return scanItems(rows)
}

// Scan returns every item matching the filter.
func (t *SQLiteTable) Scan(ctx context.Context, filter Filter) ([]Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	query := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE 1 = 1`, t.table)
	var args []interface{}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.SK != "" {
		query += ` AND sk = ?`
		args = append(args, filter.SK)
	}
	if filter.SKPrefix != "" {
		query += ` AND sk LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(filter.SKPrefix))
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	return scanItems(rows)
}

// Put writes the item.
func (t *SQLiteTable) Put(ctx context.Context, item Item) error {
	attrs, err := encodeAttrs(item.Attrs)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT INTO %s (pk, sk, type, attrs) VALUES (?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET type = excluded.type, attrs = excluded.attrs`, t.table)
	if _, err := t.db.ExecContext(ctx, query, item.PK, item.SK, item.Type, attrs); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key(), err)
	}
	return nil
}

// Delete removes the item.
func (t *SQLiteTable) Delete(ctx context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE pk = ? AND sk = ?`, t.table)
	if _, err := t.db.ExecContext(ctx, query, key.PK, key.SK); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

// UpdateCounter performs the conditional update in a single UPDATE ... RETURNING statement.
func (t *SQLiteTable) UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	path := "$." + upd.Attr
	current := `COALESCE(CAST(json_extract(attrs, ?) AS INTEGER), 0)`
	query := fmt.Sprintf(`UPDATE %s SET attrs = json_set(attrs, ?, %s + ?) WHERE pk = ? AND sk = ?`, t.table, current)
	args := []interface{}{path, path, upd.Delta, key.PK, key.SK}
	if upd.Min != nil {
		query += ` AND ` + current + ` >= ?`
		args = append(args, path, *upd.Min)
	}
	query += ` RETURNING pk, sk, type, attrs`

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := scanItem(tx.QueryRowContext(ctx, query, args...))
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update counter on %s: %w", key, err)
	}

	// No row updated: either the item is missing or the predicate failed.
	// The UPDATE took the write lock, so this read sees the row it evaluated.
	selectQuery := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE pk = ? AND sk = ?`, t.table)
	existing, err := scanItem(tx.QueryRowContext(ctx, selectQuery, key.PK, key.SK))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	return existing, ErrConditionFailed
}

// Stats returns item counts per type.
func (t *SQLiteTable) Stats(ctx context.Context) (map[string]interface{}, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType, total, err := countByType(ctx, t.db, t.table)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"backend":     "sqlite",
		"total_items": total,
		"by_type":     byType,
	}, nil
}

// Close closes the database connection.
func (t *SQLiteTable) Close() error {
	return t.db.Close()
}

// Ensure SQLiteTable implements Table
var _ Table = (*SQLiteTable)(nil)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var raw []byte
	if err := row.Scan(&item.PK, &item.SK, &item.Type, &raw); err != nil {
		return nil, err
	}
	attrs, err := decodeAttrs(raw)
	if err != nil {
		return nil, err
	}
	item.Attrs = attrs
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func countByType(ctx context.Context, db *sql.DB, table string) (map[string]int, int, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT type, COUNT(*) FROM %s GROUP BY type`, table))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	byType := make(map[string]int)
	total := 0
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, 0, fmt.Errorf("failed to scan count: %w", err)
		}
		byType[typ] = n
		total += n
	}
	return byType, total, rows.Err()
}
