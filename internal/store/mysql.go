package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"go.uber.org/zap"
)

// MySQLTable implements Table on MySQL with a JSON attribute column.
// Counter updates lock the row with SELECT ... FOR UPDATE inside a transaction.
type MySQLTable struct {
	db    *sql.DB
	table string
}

// NewMySQLTable connects to MySQL and creates the table if needed.
func NewMySQLTable(dsn, table string, logger *zap.Logger) (*MySQLTable, error) {
	if err := validTableName(table); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	t := &MySQLTable{db: db, table: table}
	if err := t.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("mysql table ready", zap.String("table", table))
	return t, nil
}

func (t *MySQLTable) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		pk VARCHAR(191) NOT NULL,
		sk VARCHAR(191) NOT NULL,
		type VARCHAR(64) NOT NULL DEFAULT '',
		attrs JSON NOT NULL,
		PRIMARY KEY (pk, sk),
		INDEX idx_%[1]s_sk (sk),
		INDEX idx_%[1]s_type (type)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, t.table)
	_, err := t.db.ExecContext(ctx, query)
	return err
}

// Get returns the item stored at key.
func (t *MySQLTable) Get(ctx context.Context, key Key) (*Item, error) {
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
func (t *MySQLTable) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	query := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE pk = ? AND sk LIKE ? ORDER BY sk`, t.table)
	rows, err := t.db.QueryContext(ctx, query, pk, likePrefix(skPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", pk, err)
	}
	return scanItems(rows)
}

// Scan returns every item matching the filter.
func (t *MySQLTable) Scan(ctx context.Context, filter Filter) ([]Item, error) {
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
		query += ` AND sk LIKE ?`
		args = append(args, likePrefix(filter.SKPrefix))
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	return scanItems(rows)
}

// Put writes the item using ON DUPLICATE KEY UPDATE.
func (t *MySQLTable) Put(ctx context.Context, item Item) error {
	attrs, err := encodeAttrs(item.Attrs)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (pk, sk, type, attrs) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE type = VALUES(type), attrs = VALUES(attrs)`, t.table)
	if _, err := t.db.ExecContext(ctx, query, item.PK, item.SK, item.Type, attrs); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key(), err)
	}
	return nil
}

// Delete removes the item.
func (t *MySQLTable) Delete(ctx context.Context, key Key) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE pk = ? AND sk = ?`, t.table)
	if _, err := t.db.ExecContext(ctx, query, key.PK, key.SK); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

// UpdateCounter locks the row, evaluates the predicate and writes the new value.
func (t *MySQLTable) UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(`SELECT pk, sk, type, attrs FROM %s WHERE pk = ? AND sk = ? FOR UPDATE`, t.table)
	item, err := scanItem(tx.QueryRowContext(ctx, selectQuery, key.PK, key.SK))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock item %s: %w", key, err)
	}

	current := item.Int(upd.Attr)
	if upd.Min != nil && current < *upd.Min {
		return item, ErrConditionFailed
	}

	item.Attrs[upd.Attr] = current + upd.Delta
	attrs, err := encodeAttrs(item.Attrs)
	if err != nil {
		return nil, err
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET attrs = ? WHERE pk = ? AND sk = ?`, t.table)
	if _, err := tx.ExecContext(ctx, updateQuery, attrs, key.PK, key.SK); err != nil {
		return nil, fmt.Errorf("failed to update counter on %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return item, nil
}

// Stats returns item counts per type and pool statistics.
func (t *MySQLTable) Stats(ctx context.Context) (map[string]interface{}, error) {
	byType, total, err := countByType(ctx, t.db, t.table)
	if err != nil {
		return nil, err
	}
	pool := t.db.Stats()
	return map[string]interface{}{
		"backend":          "mysql",
		"total_items":      total,
		"by_type":          byType,
		"open_connections": pool.OpenConnections,
	}, nil
}

// Close closes the connection pool.
func (t *MySQLTable) Close() error {
	return t.db.Close()
}

// Ensure MySQLTable implements Table
var _ Table = (*MySQLTable)(nil)
