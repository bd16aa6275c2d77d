package store

import (
	"database/sql"
	"time"
)

const (
	keyManifestURL = "community_manifest_url"
	keyRefreshedAt = "community_refreshed_at"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RecordCommunityRefresh remembers when and from where the community
// manifest was last loaded.
func (s *Store) RecordCommunityRefresh(manifestURL string, at time.Time) error {
	if err := s.SetMetadata(keyManifestURL, manifestURL); err != nil {
		return err
	}
	return s.SetMetadata(keyRefreshedAt, at.UTC().Format(time.RFC3339))
}

// LastCommunityRefresh returns the last recorded refresh. ok is false when
// no refresh was recorded.
func (s *Store) LastCommunityRefresh() (manifestURL string, at time.Time, ok bool, err error) {
	if manifestURL, err = s.GetMetadata(keyManifestURL); err != nil {
		return "", time.Time{}, false, err
	}
	raw, err := s.GetMetadata(keyRefreshedAt)
	if err != nil || raw == "" {
		return manifestURL, time.Time{}, false, err
	}
	at, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		return manifestURL, time.Time{}, false, err
	}
	return manifestURL, at, true, nil
}
