package promotions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// mediaTTL bounds how long fetched media bytes are trusted before a fresh
// fetch is forced, per the §3 data model ("Bounded by count and TTL").
const mediaTTL = 6 * time.Hour

// mediaEntry is the (bytes, fetched_at) pair the §3 data model names.
type mediaEntry struct {
	bytes     []byte
	fetchedAt time.Time
}

// mediaCache fetches a promotion's content_url once and keeps the bytes
// around so a broadcaster tick delivering to a hundred users doesn't
// re-fetch the same image a hundred times. Bounded by entry count (one
// promotion's media per entry, since the sheet is expected to carry a
// handful of active promotions at once) and by TTL, checked on access the
// same way the teacher's typingStop map is swept lazily on lookup rather
// than on its own timer.
type mediaCache struct {
	cache  *lru.Cache[string, mediaEntry]
	client *http.Client
}

func newMediaCache(size int) *mediaCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, mediaEntry](size)
	return &mediaCache{
		cache:  c,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// get returns contentURL's media bytes, fetching on a miss or once the
// cached entry has aged past mediaTTL.
func (m *mediaCache) get(ctx context.Context, contentURL string) ([]byte, error) {
	if e, ok := m.cache.Get(contentURL); ok && time.Since(e.fetchedAt) < mediaTTL {
		return e.bytes, nil
	}
	b, err := m.fetch(ctx, contentURL)
	if err != nil {
		return nil, err
	}
	m.cache.Add(contentURL, mediaEntry{bytes: b, fetchedAt: time.Now()})
	return b, nil
}

func (m *mediaCache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("promotions: fetching media %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
