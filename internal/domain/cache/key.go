// Package cache defines the key format and diagnostic types of the
// in-memory artifact cache.
package cache

import (
	"sort"
	"strings"
	"time"
)

// NamespaceRecording prefixes recording payload keys.
const NamespaceRecording = "recording"

// keyEscaper escapes the separators so that distinct parameter sets never
// render to the same key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, `:`, `\:`)

// Key renders namespace and params as
//
//	namespace|name1:value1|name2:value2
//
// with names sorted lexicographically. Backslash, pipe and colon inside
// names or values are escaped with a backslash. The format is stable.
func Key(namespace string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(keyEscaper.Replace(namespace))
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(keyEscaper.Replace(name))
		b.WriteByte(':')
		b.WriteString(keyEscaper.Replace(params[name]))
	}
	return b.String()
}

// RecordingKey is the cache key of one recording fetch.
func RecordingKey(filename, action string) string {
	return Key(NamespaceRecording, map[string]string{
		"filename": filename,
		"action":   action,
	})
}

// Artifact is a cached binary payload.
type Artifact struct {
	ContentType string
	Data        []byte
	StoredAt    time.Time
}

// Status is a point-in-time summary of the cache and session store.
type Status struct {
	TotalEntries   int       `json:"totalEntries"`
	ActiveEntries  int       `json:"activeEntries"`
	ExpiredEntries int       `json:"expiredEntries"`
	MaxEntries     int       `json:"maxEntries"`
	TotalSessions  int       `json:"totalSessions"`
	Hits           uint64    `json:"hits"`
	Misses         uint64    `json:"misses"`
	Evictions      uint64    `json:"evictions"`
	Timestamp      time.Time `json:"timestamp"`
}
