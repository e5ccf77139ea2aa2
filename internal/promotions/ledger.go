package promotions

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"
)

// ledger is the append-only SENT ledger: one line per (promotion_id,
// user_id) delivery, tab-separated, with an in-memory set mirroring the
// file for O(1) dedup checks. Grounded on the teacher's append-mode file
// writes for memory notes, with an explicit f.Sync() before close added
// since a lost write here means a duplicate delivery, not just a missing
// recollection.
type ledger struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]struct{}
}

func openLedger(path string) (*ledger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		seen[ledgerKey(fields[0], fields[1])] = struct{}{}
	}
	return &ledger{file: f, seen: seen}, nil
}

func ledgerKey(promotionID, userID string) string {
	return promotionID + "\t" + userID
}

// has reports whether (promotionID, userID) has already been recorded.
func (l *ledger) has(promotionID, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[ledgerKey(promotionID, userID)]
	return ok
}

// record appends one ledger line and fsyncs before returning, so a crash
// immediately after record returns cannot silently drop the entry (spec
// §4.7: "on success, write the pair to the SENT ledger... fsync on close").
// We fsync per-write rather than only at process close, since the
// broadcaster never calls close() except at shutdown and the durability
// guarantee must hold per delivery, not just at the end of the process.
func (l *ledger) record(promotionID, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(promotionID, userID)
	if _, ok := l.seen[key]; ok {
		return nil
	}
	if _, err := l.file.WriteString(promotionID + "\t" + userID + "\t" + time.Now().UTC().Format(time.RFC3339) + "\n"); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	l.seen[key] = struct{}{}
	return nil
}

func (l *ledger) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
