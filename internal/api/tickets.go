package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Browsers cannot set an Authorization header on a WebSocket upgrade, so
// /ws authenticates with a one-shot ticket issued to an already
// authenticated caller.
const (
	// ticketTTL is how long a WebSocket ticket stays valid.
	ticketTTL = 30 * time.Second

	// ticketBytes is the number of random bytes in a ticket.
	ticketBytes = 16

	// ticketCleanInterval is how often expired tickets are purged.
	ticketCleanInterval = time.Minute
)

// ticketEntry records the subject a ticket was issued to and its expiry.
type ticketEntry struct {
	subject   string
	expiresAt time.Time
}

// ticketStore holds outstanding WebSocket tickets. Safe for concurrent use.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue creates a new single-use ticket for the given subject.
func (ts *ticketStore) issue(subject string) string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		subject:   subject,
		expiresAt: time.Now().Add(ticketTTL),
	}
	ts.mu.Unlock()

	return ticket
}

// redeem consumes a ticket, returning the subject it was issued to.
// A ticket can be redeemed at most once.
func (ts *ticketStore) redeem(ticket string) (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(ts.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.subject, true
}

// cleanLoop periodically removes expired tickets until the context is
// cancelled. Redeemed tickets are removed eagerly; this catches tickets
// that were issued but never used.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			ts.mu.Lock()
			for ticket, entry := range ts.tickets {
				if now.After(entry.expiresAt) {
					delete(ts.tickets, ticket)
				}
			}
			ts.mu.Unlock()
		}
	}
}
