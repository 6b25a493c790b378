package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// Operation tags carried in the envelope's "operation" field. The set is
// closed on the server side; unknown tags are ignored by the dispatcher.
const (
	OpMessage       = "message"
	OpImage         = "image"
	OpFile          = "file"
	OpHandshake     = "handshake"
	OpKeyExchange   = "keyExchange"
	OpGetAvatar     = "GET_AVATAR"
	OpAvatar        = "AVATAR"
	OpAvatarOrg     = "AVATAR_ORG"
	OpMessageStatus = "messageStatus"
)

// Values of the "messageStatus" field.
const (
	StatusServer          = "server"
	StatusDelivered       = "delivered"
	StatusReceived        = "received"
	StatusDeliveredToUser = "delivered_to_user"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrNoOperation  = errors.New("envelope has no operation")
	ErrNoPublicKey  = errors.New("handshake payload has no publicKey")
	ErrBadHandshake = errors.New("handshake payload is not a JSON object")
)

// Envelope is the canonical relay message record. Field names match the wire
// format exactly; file fields are opaque references, the relay never touches
// their content.
type Envelope struct {
	SenderID      string `json:"senderId"`
	ReceiverID    string `json:"receiverId"`
	Operation     string `json:"operation"`
	Message       string `json:"message,omitempty"`
	FileURL       string `json:"fileUrl,omitempty"`
	Filetype      string `json:"filetype,omitempty"`
	FileSize      string `json:"fileSize,omitempty"`
	FileHash      string `json:"fileHash,omitempty"`
	MessageID     string `json:"messageId"`
	MessageStatus string `json:"messageStatus,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

func ParseEnvelope(raw []byte) (Envelope, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, err
	}
	if e.Operation == "" {
		return Envelope{}, ErrNoOperation
	}
	return e, nil
}

// Encode serializes the envelope to its wire form. An envelope is a flat
// record of strings, so marshalling cannot fail.
func (e Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

// NewStatusEnvelope builds the delivery-status acknowledgment the server
// sends about a relayed message.
func NewStatusEnvelope(senderID, receiverID, messageID, status string) Envelope {
	return Envelope{
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Operation:     OpMessageStatus,
		MessageID:     messageID,
		MessageStatus: status,
	}
}

type handshakePayload struct {
	PublicKey string `json:"publicKey"`
}

// NewHandshakeEnvelope wraps a public key in the nested payload the handshake
// protocol expects in the "message" field.
func NewHandshakeEnvelope(senderID, receiverID, publicKey string) Envelope {
	payload, _ := json.Marshal(handshakePayload{PublicKey: publicKey})
	return Envelope{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Operation:  OpHandshake,
		Message:    string(payload),
		MessageID:  "",
	}
}

// HandshakeKey extracts the public key nested in a handshake envelope's
// message payload.
func (e Envelope) HandshakeKey() (string, error) {
	var payload handshakePayload
	if err := json.Unmarshal([]byte(e.Message), &payload); err != nil {
		return "", ErrBadHandshake
	}
	if strings.TrimSpace(payload.PublicKey) == "" {
		return "", ErrNoPublicKey
	}
	return payload.PublicKey, nil
}

// StatusKey is the dedup key joining an identity with a message id.
func StatusKey(identity, messageID string) string {
	return identity + ":" + messageID
}
