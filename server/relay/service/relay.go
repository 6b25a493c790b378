package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rifatismailov/server-cube/server/relay/domain"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

const (
	registerPrefix    = "REGISTER:"
	checkStatusPrefix = "CHECK_STATUS:"
	registerOK        = "REGISTER_OK"
	registerFailed    = "REGISTER_FAILED"
)

type registerRequest struct {
	UserID   string   `json:"userId"`
	Life     string   `json:"life"`
	Contacts []string `json:"contacts"`
}

// Relay is the explicitly constructed context owning the session directory,
// offline mailbox, outbound sender and key store. Every inbound frame enters
// through HandleFrame; there is no ambient global state.
type Relay struct {
	directory  *Directory
	mailbox    *Mailbox
	sender     *Sender
	keys       *KeyExchange
	dispatcher *Dispatcher
}

// Options bound the relay's resources. Zero values fall back to defaults.
type Options struct {
	StaleTTL    time.Duration
	SendWorkers int
	SendQueue   int
}

func NewRelay(opts Options) *Relay {
	if opts.StaleTTL <= 0 {
		opts.StaleTTL = 6 * time.Second
	}
	r := &Relay{
		directory: NewDirectory(opts.StaleTTL),
		mailbox:   NewMailbox(),
	}
	r.sender = NewSender(r.directory, r.mailbox, opts.SendWorkers, opts.SendQueue)
	r.keys = NewKeyExchange(r)
	r.dispatcher = NewDispatcher(r.sender, r.mailbox, r.keys)
	return r
}

// Close drains the outbound worker pool.
func (r *Relay) Close() {
	r.sender.Close()
}

// HandleFrame processes one inbound text frame: a REGISTER or CHECK_STATUS
// control frame, or a JSON envelope routed by operation. Malformed frames
// are dropped with a log entry, never surfaced to the connection.
func (r *Relay) HandleFrame(conn Conn, payload []byte) {
	frame := string(payload)
	switch {
	case strings.HasPrefix(frame, registerPrefix):
		r.handleRegister(conn, frame[len(registerPrefix):])
	case strings.HasPrefix(frame, checkStatusPrefix):
		r.handleCheckStatus(conn, frame[len(checkStatusPrefix):])
	default:
		env, err := domain.ParseEnvelope(payload)
		if err != nil {
			commonlog.Warnf("drop frame conn=%s error=%v", conn.ID(), err)
			return
		}
		r.dispatcher.Dispatch(conn, env, payload)
	}
}

// Disconnect releases whatever identity the closed connection was bound to.
func (r *Relay) Disconnect(conn Conn) {
	r.directory.Unbind(conn)
}

func (r *Relay) handleRegister(conn Conn, body string) {
	req, err := parseRegisterRequest(body)
	if err != nil {
		commonlog.Warnf("drop register frame conn=%s error=%v", conn.ID(), err)
		return
	}
	statuses, err := r.directory.Register(conn, req.UserID, req.Life, req.Contacts)
	if err != nil {
		commonlog.Warnf("registration failed conn=%s identity=%s error=%v", conn.ID(), req.UserID, err)
		r.reply(conn, registerFailed)
		return
	}
	r.reply(conn, registerOK+":"+marshalStatuses(statuses))
}

func (r *Relay) handleCheckStatus(conn Conn, body string) {
	req, err := parseRegisterRequest(body)
	if err != nil {
		commonlog.Warnf("drop check-status frame conn=%s error=%v", conn.ID(), err)
		return
	}
	if req.UserID == "" {
		commonlog.Warnf("drop check-status frame conn=%s error=missing userId", conn.ID())
		return
	}
	statuses := r.directory.CheckStatus(conn, req.UserID, req.Life, req.Contacts)
	r.reply(conn, registerOK+":"+marshalStatuses(statuses))
	r.sender.Flush(req.UserID)
}

func (r *Relay) reply(conn Conn, frame string) {
	if err := conn.Send([]byte(frame)); err != nil {
		commonlog.Errorf("reply failed conn=%s error=%v", conn.ID(), err)
	}
}

func parseRegisterRequest(body string) (registerRequest, error) {
	var req registerRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return registerRequest{}, err
	}
	if req.Life == "" {
		req.Life = defaultLifeTag
	}
	return req, nil
}

func marshalStatuses(statuses []string) string {
	if statuses == nil {
		statuses = []string{}
	}
	b, _ := json.Marshal(statuses)
	return string(b)
}

// Capability surface for the key exchange engine.

func (r *Relay) Deliver(receiverID, messageID string, raw []byte) {
	r.sender.Deliver(receiverID, messageID, raw)
}

func (r *Relay) SaveOffline(receiverID, messageID string, raw []byte) {
	r.mailbox.Save(receiverID, messageID, raw)
}

func (r *Relay) IsOnline(identity string) bool {
	return r.directory.IsOnline(identity)
}

// Stats is the read-only snapshot served by the ops endpoint.
type Stats struct {
	Sessions         int `json:"sessions"`
	Tracked          int `json:"tracked"`
	QueuedIdentities int `json:"queued_identities"`
	QueuedEnvelopes  int `json:"queued_envelopes"`
	StoredKeys       int `json:"stored_keys"`
}

func (r *Relay) Stats() Stats {
	return Stats{
		Sessions:         r.directory.Sessions(),
		Tracked:          r.directory.Tracked(),
		QueuedIdentities: r.mailbox.QueuedIdentities(),
		QueuedEnvelopes:  r.mailbox.QueuedEnvelopes(),
		StoredKeys:       r.keys.Stored(),
	}
}
