package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saved_topics (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL UNIQUE,
		quiz_json TEXT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func checksum(payload string) string {
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// LoadSavedTopics returns the saved topics in their stored order. Rows whose
// checksum does not match or whose quiz cannot be decoded are skipped.
func (s *Store) LoadSavedTopics() ([]model.TopicEntry, error) {
	rows, err := s.db.Query(`SELECT id, name, quiz_json, checksum FROM saved_topics ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TopicEntry
	for rows.Next() {
		var id, name, payload, sum string
		if err := rows.Scan(&id, &name, &payload, &sum); err != nil {
			return nil, err
		}
		if sum != "" && sum != checksum(payload) {
			slog.Warn("skipping saved topic with bad checksum", "id", id, "name", name)
			continue
		}
		quiz, err := parser.ParseStructured(payload)
		if err != nil {
			slog.Warn("skipping unreadable saved topic", "id", id, "name", name, "error", err)
			continue
		}
		entries = append(entries, model.TopicEntry{
			Name:       name,
			Quiz:       quiz,
			Provenance: model.ModeSaved,
			State:      model.StatePopulated,
		})
	}
	return entries, rows.Err()
}

// ReplaceSavedTopics overwrites the stored collection with entries, keeping
// the id and creation time of topics that survive by name.
func (s *Store) ReplaceSavedTopics(entries []model.TopicEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	type existing struct {
		id        string
		createdAt time.Time
	}
	known := make(map[string]existing)
	rows, err := tx.Query(`SELECT id, name, created_at FROM saved_topics`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var e existing
		var name string
		if err := rows.Scan(&e.id, &name, &e.createdAt); err != nil {
			rows.Close()
			return err
		}
		known[name] = e
	}
	if err := rows.Close(); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM saved_topics`); err != nil {
		return err
	}

	now := time.Now()
	for i, e := range entries {
		payload, err := parser.SerializeStructured(e.Quiz)
		if err != nil {
			return fmt.Errorf("encode topic %q: %w", e.Name, err)
		}
		row, ok := known[e.Name]
		if !ok {
			row = existing{id: uuid.NewString(), createdAt: now}
		}
		_, err = tx.Exec(
			`INSERT INTO saved_topics (id, position, name, quiz_json, checksum, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			row.id, i, e.Name, payload, checksum(payload), row.createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert topic %q: %w", e.Name, err)
		}
	}

	return tx.Commit()
}

// SavedTopicID returns the stored id of a saved topic, or "" if absent.
func (s *Store) SavedTopicID(name string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM saved_topics WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// SavedTopicCount returns the number of stored saved topics.
func (s *Store) SavedTopicCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM saved_topics`).Scan(&count)
	return count, err
}
