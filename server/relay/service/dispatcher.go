package service

import (
	"github.com/rifatismailov/server-cube/server/relay/domain"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

// Dispatcher routes one inbound envelope to the directory, mailbox or key
// exchange engine, keyed by the operation tag. Unknown operations are a
// deliberate no-op so forward-compatible clients cannot crash the relay.
type Dispatcher struct {
	sender  *Sender
	mailbox *Mailbox
	keys    *KeyExchange
}

func NewDispatcher(sender *Sender, mailbox *Mailbox, keys *KeyExchange) *Dispatcher {
	return &Dispatcher{sender: sender, mailbox: mailbox, keys: keys}
}

func (d *Dispatcher) Dispatch(conn Conn, env domain.Envelope, raw []byte) {
	switch env.Operation {
	case domain.OpMessage, domain.OpImage, domain.OpFile:
		d.sender.Deliver(env.ReceiverID, env.MessageID, raw)
		d.ackServer(conn, env)

	case domain.OpHandshake:
		key, err := env.HandshakeKey()
		if err != nil {
			commonlog.Warnf("drop handshake frame sender=%s receiver=%s error=%v", env.SenderID, env.ReceiverID, err)
			return
		}
		d.keys.Handle(env.SenderID, env.ReceiverID, key)

	case domain.OpAvatar, domain.OpAvatarOrg, domain.OpGetAvatar, domain.OpKeyExchange:
		d.sender.Deliver(env.ReceiverID, env.MessageID, raw)

	case domain.OpMessageStatus:
		d.handleStatus(env)

	default:
		commonlog.Debugf("ignore unknown operation=%s sender=%s", env.Operation, env.SenderID)
	}
}

// ackServer confirms to the original sender, on its own connection, that the
// server accepted the message for relay.
func (d *Dispatcher) ackServer(conn Conn, env domain.Envelope) {
	ack := domain.NewStatusEnvelope(env.ReceiverID, env.SenderID, env.MessageID, domain.StatusServer)
	if conn == nil || !conn.IsOpen() {
		commonlog.Warnf("server ack dropped, sender connection closed identity=%s", env.SenderID)
		return
	}
	if err := conn.Send(ack.Encode()); err != nil {
		commonlog.Errorf("server ack failed identity=%s error=%v", env.SenderID, err)
	}
}

func (d *Dispatcher) handleStatus(env domain.Envelope) {
	switch env.MessageStatus {
	case domain.StatusDelivered:
		// The report travels sender→server confirming the server's relayed
		// copy was accepted, so the ledger key uses the sender's id.
		d.mailbox.Delete(env.SenderID, env.MessageID)
		d.mailbox.MarkDelivered(env.SenderID, env.MessageID)

	case domain.StatusDeliveredToUser:
		received := domain.NewStatusEnvelope(env.SenderID, env.ReceiverID, env.MessageID, domain.StatusReceived)
		d.sender.Deliver(env.ReceiverID, env.MessageID, received.Encode())
	}
}
