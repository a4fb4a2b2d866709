// Package history keeps a short per-user memory of recent violations so the
// classifier can weigh repeat behavior. The cache is owned by whoever runs
// the scans and injected where needed; it holds at most maxEntries per user.
package history

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const maxEntries = 10

// Entry is one past violation: the rule broken and the actions applied.
type Entry struct {
	Rule    string
	Actions string
}

// Cache is a bounded per-user violation ring. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]Entry)}
}

// Record appends a violation for userID, evicting the oldest entry past the
// cap.
func (c *Cache) Record(userID, rule string, actions []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.entries[userID], Entry{Rule: rule, Actions: strings.Join(actions, ", ")})
	if len(list) > maxEntries {
		list = list[len(list)-maxEntries:]
	}
	c.entries[userID] = list
}

// For returns a copy of userID's entries, oldest first.
func (c *Cache) For(userID string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.entries[userID]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// BuildBlob renders the history of the given users as the prompt section the
// classifier consumes. Users with no history are omitted.
func (c *Cache) BuildBlob(userIDs []string) string {
	ids := make([]string, len(userIDs))
	copy(ids, userIDs)
	sort.Strings(ids)

	var blocks []string
	for _, uid := range ids {
		entries := c.For(uid)
		if len(entries) == 0 {
			continue
		}
		lines := make([]string, 0, len(entries))
		for i, e := range entries {
			lines = append(lines, fmt.Sprintf("%d. %s - previously punished with %s", i+1, e.Rule, e.Actions))
		}
		blocks = append(blocks, fmt.Sprintf("User %s has %d recent violation(s):\n%s", uid, len(entries), strings.Join(lines, "\n")))
	}

	body := "No recent violations on record."
	if len(blocks) > 0 {
		body = strings.Join(blocks, "\n")
	}
	return fmt.Sprintf("Violation history:\n%s\n\n", body)
}
