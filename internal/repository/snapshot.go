package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"knowledgehub/internal/types"
)

// snapshotStore persists items to a local sqlite file so a restart can
// rebuild the in-memory structures. Each item is stored as its wire JSON;
// the schema stays trivial and forward-compatible.
type snapshotStore struct {
	db *sql.DB
}

func openSnapshot(path string) (*snapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Single writer; the repository serializes mutations anyway.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS knowledge_items (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return &snapshotStore{db: db}, nil
}

func (s *snapshotStore) save(item *types.KnowledgeItem) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", item.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO knowledge_items (id, doc, updated_at) VALUES (?, ?, ?)`,
		item.ID, string(doc), item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *snapshotStore) delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM knowledge_items WHERE id = ?`, id)
	return err
}

// loadAll returns every persisted item in insertion order, so vector-store
// tie-break ordering survives a restart.
func (s *snapshotStore) loadAll(ctx context.Context) ([]*types.KnowledgeItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM knowledge_items ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*types.KnowledgeItem
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var item types.KnowledgeItem
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot row: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *snapshotStore) close() {
	s.db.Close()
}
