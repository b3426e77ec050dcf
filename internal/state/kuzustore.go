//go:build cgo

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore keeps each session as a Session node. The full state is stored
// as a JSON document next to a few columns used for ordering and lookups.
// go-kuzu wraps the C library, so this file needs cgo.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Store = (*KuzuStore)(nil)

const (
	createSessionTable = `CREATE NODE TABLE IF NOT EXISTS Session(
	id STRING,
	created_at STRING,
	updated_at STRING,
	verified BOOLEAN,
	doc STRING,
	PRIMARY KEY(id)
)`
	upsertSession = `MERGE (s:Session {id: $id})
SET s.created_at = $created, s.updated_at = $updated, s.verified = $verified, s.doc = $doc`
	loadSession  = `MATCH (s:Session {id: $id}) RETURN s.doc`
	listSessions = `MATCH (s:Session) RETURN s.id ORDER BY s.created_at, s.id`
)

// sortableTime keeps lexical and chronological order in step.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// NewKuzuStore opens a throwaway in-memory database.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore opens (or creates) the database at dbPath.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: creating %s: %w", filepath.Dir(dbPath), err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: opening %s: %w", path, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: connecting: %w", err)
	}

	ks := &KuzuStore{db: db, conn: conn}
	res, err := conn.Query(createSessionTable)
	if err != nil {
		ks.Close()
		return nil, fmt.Errorf("kuzu: creating Session table: %w", err)
	}
	res.Close()
	return ks, nil
}

// Close releases the connection and the database handle.
func (k *KuzuStore) Close() error {
	if k.conn != nil {
		k.conn.Close()
	}
	if k.db != nil {
		k.db.Close()
	}
	return nil
}

func (k *KuzuStore) Get(_ context.Context, id string) (*PipelineState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var doc string
	found := false
	err := k.each(loadSession, map[string]any{"id": id}, func(row []any) {
		doc, found = row[0].(string)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	st := new(PipelineState)
	if err := json.Unmarshal([]byte(doc), st); err != nil {
		return nil, fmt.Errorf("kuzu: decoding session %s: %w", id, err)
	}
	return st, nil
}

func (k *KuzuStore) Put(_ context.Context, st *PipelineState) error {
	if st == nil || st.SessionID == "" {
		return fmt.Errorf("kuzu: session id is required")
	}
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("kuzu: encoding session %s: %w", st.SessionID, err)
	}

	verified := false
	if sheet, err := st.FactSheet(); err == nil {
		verified = sheet.Verified
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.each(upsertSession, map[string]any{
		"id":       st.SessionID,
		"created":  stamp(st.CreatedAt),
		"updated":  stamp(st.UpdatedAt),
		"verified": verified,
		"doc":      string(doc),
	}, nil)
}

func (k *KuzuStore) List(_ context.Context) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var ids []string
	err := k.each(listSessions, nil, func(row []any) {
		if id, ok := row[0].(string); ok {
			ids = append(ids, id)
		}
	})
	return ids, err
}

// each prepares and executes cypher, handing every result row to fn.
// A nil fn discards the rows.
func (k *KuzuStore) each(cypher string, params map[string]any, fn func([]any)) error {
	stmt, err := k.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	if params == nil {
		params = map[string]any{}
	}
	res, err := k.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	defer res.Close()

	for fn != nil && res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return fmt.Errorf("kuzu: reading row: %w", err)
		}
		row, err := tuple.GetAsSlice()
		if err != nil {
			return fmt.Errorf("kuzu: decoding row: %w", err)
		}
		fn(row)
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(sortableTime)
}
