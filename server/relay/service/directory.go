package service

import (
	"errors"
	"sync"
	"time"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

// Conn is the transport contract the relay needs from a live connection.
// The connection id is stable per socket and distinct from the application
// identity bound to it.
type Conn interface {
	ID() string
	IsOpen() bool
	Send(data []byte) error
}

var (
	ErrEmptyIdentity = errors.New("identity is required")
	ErrIdentityTaken = errors.New("identity already has a live session")
)

const defaultLifeTag = "unknown"

type presenceRecord struct {
	life     string
	lastSeen time.Time
}

// Directory owns the identity→connection binding and the presence table.
// At most one session is bound per identity at any instant.
type Directory struct {
	mu       sync.RWMutex
	staleTTL time.Duration
	sessions map[string]Conn
	presence map[string]presenceRecord
}

func NewDirectory(staleTTL time.Duration) *Directory {
	return &Directory{
		staleTTL: staleTTL,
		sessions: map[string]Conn{},
		presence: map[string]presenceRecord{},
	}
}

// Register binds a connection to an identity. It fails when the identity is
// empty or already bound; the existing session is left untouched. On success
// the statuses of the requested contacts are returned.
func (d *Directory) Register(conn Conn, identity, life string, contacts []string) ([]string, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	d.mu.Lock()
	if _, ok := d.sessions[identity]; ok {
		d.mu.Unlock()
		return nil, ErrIdentityTaken
	}
	d.sessions[identity] = conn
	d.presence[identity] = presenceRecord{life: life, lastSeen: time.Now()}
	d.mu.Unlock()

	commonlog.Infof("register identity=%s conn=%s", identity, conn.ID())
	return d.ContactStatus(contacts), nil
}

// CheckStatus refreshes an identity's presence and returns contact statuses.
// When no session is bound the current connection is attached; an existing
// binding is never replaced, only the life tag and last-seen are refreshed.
func (d *Directory) CheckStatus(conn Conn, identity, life string, contacts []string) []string {
	d.mu.Lock()
	if _, ok := d.sessions[identity]; !ok {
		d.sessions[identity] = conn
	}
	d.presence[identity] = presenceRecord{life: life, lastSeen: time.Now()}
	d.mu.Unlock()

	return d.ContactStatus(contacts)
}

// Unbind removes whichever identity is bound to the given connection and
// clears its presence record. Called when a connection closes.
func (d *Directory) Unbind(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for identity, bound := range d.sessions {
		if bound.ID() == conn.ID() {
			delete(d.sessions, identity)
			delete(d.presence, identity)
			commonlog.Infof("unbind identity=%s conn=%s", identity, conn.ID())
		}
	}
}

// ContactStatus reports "id=status" for each requested id: the identity's
// life tag when a live open session is bound, "disconnect" otherwise. Before
// computing statuses it sweeps the whole presence table and evicts every
// identity whose last-seen exceeds the staleness TTL.
func (d *Directory) ContactStatus(ids []string) []string {
	d.mu.Lock()
	now := time.Now()
	for identity, record := range d.presence {
		if now.Sub(record.lastSeen) > d.staleTTL {
			delete(d.sessions, identity)
			delete(d.presence, identity)
			commonlog.Infof("presence sweep evicted identity=%s", identity)
		}
	}

	statuses := make([]string, 0, len(ids))
	for _, id := range ids {
		status := "disconnect"
		if conn, ok := d.sessions[id]; ok && conn.IsOpen() {
			status = defaultLifeTag
			if record, ok := d.presence[id]; ok && record.life != "" {
				status = record.life
			}
		}
		statuses = append(statuses, id+"="+status)
	}
	d.mu.Unlock()
	return statuses
}

// Lookup returns the connection bound to an identity, if any.
func (d *Directory) Lookup(identity string) (Conn, bool) {
	d.mu.RLock()
	conn, ok := d.sessions[identity]
	d.mu.RUnlock()
	return conn, ok
}

// IsOnline reports whether an identity has a live open session.
func (d *Directory) IsOnline(identity string) bool {
	conn, ok := d.Lookup(identity)
	return ok && conn.IsOpen()
}

// Sessions reports the number of bound sessions.
func (d *Directory) Sessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Tracked reports the number of presence records.
func (d *Directory) Tracked() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.presence)
}
