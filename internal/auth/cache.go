package auth

import (
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// cacheTTL is how long an authorization verdict is trusted before
// is_authorized re-scans the auth sheet.
const cacheTTL = 24 * time.Hour

// cacheEntry is one user_id's cached verdict.
type cacheEntry struct {
	Authorized bool
	Timestamp  time.Time
}

func (e cacheEntry) stale(now time.Time) bool {
	return now.Sub(e.Timestamp) >= cacheTTL
}

// cache is the single-owner in-memory auth verdict cache, best-effort
// persisted to a local sqlite file (path == "" keeps it purely in-memory).
// A miss or a stale entry never blocks: callers always get a correct
// answer, falling back to a sheet scan when needed (spec §3: "loss ⇒
// re-fetch, not a correctness issue").
//
// Grounded on modernc.org/sqlite, the teacher's pure-Go sqlite driver
// (kept from its go.mod and repurposed here as the coordinator's one
// local durable key-value store, rather than the teacher's own use of it).
type cache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	db   *sql.DB
}

func newCache(path string) *cache {
	c := &cache{data: make(map[string]cacheEntry)}
	if path == "" {
		return c
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return c
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS auth_cache (
		user_id TEXT PRIMARY KEY,
		authorized INTEGER NOT NULL,
		timestamp TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return c
	}
	c.db = db
	c.loadFromDisk()
	return c
}

func (c *cache) get(userID string, now time.Time) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[userID]
	if !ok || e.stale(now) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *cache) set(userID string, authorized bool, now time.Time) {
	c.mu.Lock()
	c.data[userID] = cacheEntry{Authorized: authorized, Timestamp: now}
	c.mu.Unlock()
	c.persist(userID, authorized, now)
}

// persist upserts a single row, ignoring failures: a lost write here only
// means the next lookup re-scans the sheet, never a correctness problem.
func (c *cache) persist(userID string, authorized bool, now time.Time) {
	if c.db == nil {
		return
	}
	_, _ = c.db.Exec(`INSERT INTO auth_cache (user_id, authorized, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET authorized = excluded.authorized, timestamp = excluded.timestamp`,
		userID, boolToInt(authorized), now.UTC().Format(time.RFC3339))
}

func (c *cache) loadFromDisk() {
	if c.db == nil {
		return
	}
	rows, err := c.db.Query(`SELECT user_id, authorized, timestamp FROM auth_cache`)
	if err != nil {
		return
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var userID, timestamp string
		var authorized int
		if err := rows.Scan(&userID, &authorized, &timestamp); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			continue
		}
		c.data[userID] = cacheEntry{Authorized: authorized != 0, Timestamp: ts}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
