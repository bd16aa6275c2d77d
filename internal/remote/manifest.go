package remote

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pavelanni/trivia/internal/model"
)

// manifestDoc is the raw manifest document.
type manifestDoc struct {
	Topics []json.RawMessage `json:"topics"`
}

type manifestTopic struct {
	Name             string `json:"name"`
	RemoteContentURL string `json:"remoteContentURL"`
	IsVisible        *bool  `json:"isVisible"`
}

// ParseManifest decodes a manifest. The document is either an object with a
// "topics" array or a bare array. Entries that fail to decode, lack a name,
// carry an unusable URL or are hidden are skipped; relative URLs resolve
// against base.
func ParseManifest(data []byte, base string) ([]model.ManifestEntry, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = &url.URL{}
	}

	var raw []json.RawMessage
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, &Error{Kind: ErrMalformedManifest, URL: base, Err: err}
		}
	} else {
		var doc manifestDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, &Error{Kind: ErrMalformedManifest, URL: base, Err: err}
		}
		raw = doc.Topics
	}

	entries := make([]model.ManifestEntry, 0, len(raw))
	for i, r := range raw {
		var mt manifestTopic
		if err := json.Unmarshal(r, &mt); err != nil {
			slog.Warn("skipping malformed manifest entry", "index", i, "error", err)
			continue
		}
		if mt.IsVisible != nil && !*mt.IsVisible {
			continue
		}
		name := strings.TrimSpace(mt.Name)
		if name == "" {
			slog.Warn("skipping manifest entry without name", "index", i)
			continue
		}
		u, err := url.Parse(strings.TrimSpace(mt.RemoteContentURL))
		if err != nil || mt.RemoteContentURL == "" {
			slog.Warn("skipping manifest entry with bad URL", "index", i, "name", name)
			continue
		}
		u = baseURL.ResolveReference(u)
		if u.Scheme != "http" && u.Scheme != "https" {
			slog.Warn("skipping manifest entry with unsupported URL", "index", i, "name", name, "url", u.String())
			continue
		}
		entries = append(entries, model.ManifestEntry{Name: name, RemoteURL: u.String()})
	}
	return entries, nil
}
