package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// descriptionPrefix caps how much of the JD enters the fingerprint; the tail
// is boilerplate that differs between boards.
const descriptionPrefix = 200

// Fingerprint identifies the same posting across platforms. Salary, apply URL
// and posted date are excluded because they vary between boards.
func Fingerprint(title, company, location, description string) string {
	jd := []rune(description)
	if len(jd) > descriptionPrefix {
		jd = jd[:descriptionPrefix]
	}
	raw := strings.ToLower(strings.TrimSpace(title)) +
		strings.ToLower(strings.TrimSpace(company)) +
		strings.ToLower(strings.TrimSpace(location)) +
		strings.ToLower(strings.TrimSpace(string(jd)))

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Canonical folds case, diacritics and surrounding whitespace so "Ésso Ltd "
// and "esso ltd" compare equal.
func Canonical(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.Join(strings.Fields(strings.ToLower(result)), " ")
}

type seenEntry struct {
	Fingerprint string `json:"fingerprint"`
	Timestamp   int64  `json:"timestamp"`
}

// JobCache is a file-backed seen-set of fingerprints with expiry.
type JobCache struct {
	mu       sync.Mutex
	filePath string
	ttl      time.Duration
	now      func() time.Time
	seen     map[string]int64
}

const defaultTTL = 30 * 24 * time.Hour

// NewJobCache creates or loads the cache stored under cacheDir.
func NewJobCache(cacheDir string) *JobCache {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Printf("⚠️ Failed to create cache directory: %v", err)
	}
	cache := &JobCache{
		filePath: filepath.Join(cacheDir, "seen_jobs.json"),
		ttl:      defaultTTL,
		now:      time.Now,
		seen:     make(map[string]int64),
	}
	cache.load()
	return cache
}

// IsSeen reports whether a fingerprint was recorded and has not expired.
func (jc *JobCache) IsSeen(fingerprint string) bool {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	ts, exists := jc.seen[fingerprint]
	if !exists {
		return false
	}
	return jc.now().UnixMilli()-ts <= jc.ttl.Milliseconds()
}

// Add records fingerprints and persists the cache if anything changed.
func (jc *JobCache) Add(fingerprints []string) {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	now := jc.now().UnixMilli()
	changed := false
	for _, fp := range fingerprints {
		if _, exists := jc.seen[fp]; !exists {
			jc.seen[fp] = now
			changed = true
		}
	}

	if changed {
		jc.save()
	}
}

// Len is the number of fingerprints currently held.
func (jc *JobCache) Len() int {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return len(jc.seen)
}

func (jc *JobCache) load() {
	data, err := os.ReadFile(jc.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Failed to read seen_jobs.json: %v", err)
		}
		return
	}

	var entries []seenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("⚠️ Failed to parse seen_jobs.json: %v", err)
		return
	}

	cutoff := jc.now().UnixMilli() - jc.ttl.Milliseconds()
	loaded := 0
	for _, e := range entries {
		if e.Timestamp > cutoff {
			jc.seen[e.Fingerprint] = e.Timestamp
			loaded++
		}
	}
	log.Printf("📋 Loaded %d previously seen jobs (%d expired and removed)", loaded, len(entries)-loaded)
}

// save must be called with mu held.
func (jc *JobCache) save() {
	entries := make([]seenEntry, 0, len(jc.seen))
	for fp, ts := range jc.seen {
		entries = append(entries, seenEntry{Fingerprint: fp, Timestamp: ts})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("⚠️ Failed to marshal seen jobs: %v", err)
		return
	}
	if err := os.WriteFile(jc.filePath, data, 0644); err != nil {
		log.Printf("⚠️ Failed to write seen_jobs.json: %v", err)
	}
}
