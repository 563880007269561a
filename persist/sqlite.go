/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	sqlite.go: Record store backed by an SQLite database file.
*/

package persist

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const recordTable = "records"

// SQLite keeps records in a single table of (key, blob). All records are
// read into memory on open; Save writes the staged ones back in one transaction.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	cache  map[Key]Record
	staged map[Key]bool
}

// OpenSQLite opens (or creates) the record database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(%s): %w", path, err)
	}
	tblCreate := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key INTEGER NOT NULL PRIMARY KEY, data BLOB NOT NULL)", recordTable)
	if _, err := db.Exec(tblCreate); err != nil {
		db.Close()
		return nil, fmt.Errorf("create %s: %w", recordTable, err)
	}

	s := &SQLite{
		db:     db,
		cache:  make(map[Key]Record),
		staged: make(map[Key]bool),
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) loadAll() error {
	rows, err := s.db.Query(fmt.Sprintf("SELECT key, data FROM %s", recordTable))
	if err != nil {
		return fmt.Errorf("read %s: %w", recordTable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k    int64
			data []byte
		)
		if err := rows.Scan(&k, &data); err != nil {
			return fmt.Errorf("scan %s: %w", recordTable, err)
		}
		r, ok := decodeRecord(data)
		if !ok {
			// Short or foreign blob: treat as never written.
			continue
		}
		s.cache[Key(k)] = r
	}
	return rows.Err()
}

func (s *SQLite) Load(k Key) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[k]
	if !ok || !r.Valid() {
		return Record{}, false
	}
	return r, true
}

func (s *SQLite) Put(k Key, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[k] = r
	s.staged[k] = true
}

func (s *SQLite) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.staged) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (key, data) VALUES(?, ?)", recordTable)
	for k := range s.staged {
		if _, err := tx.Exec(stmt, int64(k), encodeRecord(s.cache[k])); err != nil {
			tx.Rollback()
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.staged = make(map[Key]bool)
	return nil
}

// Close releases the database handle. Unsaved records are lost.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 4*RecordSize)
	for i, v := range r {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeRecord(buf []byte) (Record, bool) {
	var r Record
	if len(buf) != 4*RecordSize {
		return r, false
	}
	for i := range r {
		r[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return r, true
}
