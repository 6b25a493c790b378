package service

import (
	"sync"

	"github.com/rifatismailov/server-cube/server/relay/domain"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

type queuedEnvelope struct {
	messageID string
	raw       []byte
}

// Mailbox holds the per-identity offline queue and the write-once delivery
// ledger. An identity with an emptied queue has no map entry at all.
type Mailbox struct {
	mu      sync.Mutex
	pending map[string][]queuedEnvelope
	ledger  map[string]string
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		pending: map[string][]queuedEnvelope{},
		ledger:  map[string]string{},
	}
}

// Save appends a serialized envelope to the identity's queue, creating the
// queue if absent.
func (m *Mailbox) Save(identity, messageID string, raw []byte) {
	m.mu.Lock()
	m.pending[identity] = append(m.pending[identity], queuedEnvelope{messageID: messageID, raw: raw})
	m.mu.Unlock()
	commonlog.Infof("save offline identity=%s messageId=%s", identity, messageID)
}

// Delete removes every queued envelope with the given message id; removing
// the last entry drops the identity's queue entirely.
func (m *Mailbox) Delete(identity, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.pending[identity]
	if !ok {
		return
	}
	kept := queue[:0]
	for _, entry := range queue {
		if entry.messageID != messageID {
			kept = append(kept, entry)
		}
	}
	removed := len(queue) - len(kept)
	if len(kept) == 0 {
		delete(m.pending, identity)
	} else {
		m.pending[identity] = kept
	}
	if removed > 0 {
		commonlog.Infof("delete offline identity=%s messageId=%s removed=%d", identity, messageID, removed)
	}
}

// MarkDelivered records the terminal dedup mark for an identity/message pair.
// The mark is write-once; repeated calls are no-ops.
func (m *Mailbox) MarkDelivered(identity, messageID string) {
	key := domain.StatusKey(identity, messageID)
	m.mu.Lock()
	if _, ok := m.ledger[key]; !ok {
		m.ledger[key] = domain.StatusDelivered
	}
	m.mu.Unlock()
}

// Delivered reports whether the ledger marks the pair as delivered.
func (m *Mailbox) Delivered(identity, messageID string) bool {
	m.mu.Lock()
	status := m.ledger[domain.StatusKey(identity, messageID)]
	m.mu.Unlock()
	return status == domain.StatusDelivered
}

// snapshot copies the identity's queue so callers can iterate while the
// queue keeps mutating underneath.
func (m *Mailbox) snapshot(identity string) []queuedEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.pending[identity]
	if !ok {
		return nil
	}
	out := make([]queuedEnvelope, len(queue))
	copy(out, queue)
	return out
}

// QueuedIdentities reports the number of identities with pending envelopes.
func (m *Mailbox) QueuedIdentities() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// QueuedEnvelopes reports the total number of pending envelopes.
func (m *Mailbox) QueuedEnvelopes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, queue := range m.pending {
		total += len(queue)
	}
	return total
}
