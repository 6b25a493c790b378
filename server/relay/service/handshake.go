package service

import (
	"sync"

	"github.com/rifatismailov/server-cube/server/relay/domain"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

// HandshakeContext is the capability surface the key exchange engine needs
// from the rest of the relay.
type HandshakeContext interface {
	Deliver(receiverID, messageID string, raw []byte)
	SaveOffline(receiverID, messageID string, raw []byte)
	IsOnline(identity string) bool
}

// KeyExchange owns the directional public key store and drives the pairwise
// handshake protocol. Entries never expire; a changed key overwrites the old
// one for that direction.
type KeyExchange struct {
	mu    sync.Mutex
	keys  map[string]string
	relay HandshakeContext
}

func NewKeyExchange(relay HandshakeContext) *KeyExchange {
	return &KeyExchange{keys: map[string]string{}, relay: relay}
}

func pairKey(senderID, receiverID string) string {
	return senderID + ":" + receiverID
}

// Handle processes one handshake from sender to receiver. A brand new or
// changed key triggers a two-way exchange; resubmitting an unchanged key
// does not, which matches the observed protocol even though it is asymmetric
// with the first-contact path.
func (k *KeyExchange) Handle(senderID, receiverID, publicKey string) {
	k.mu.Lock()
	if len(k.keys) == 0 {
		k.store(senderID, receiverID, publicKey)
		k.mu.Unlock()
		return
	}
	if existing, ok := k.keys[pairKey(senderID, receiverID)]; ok {
		if existing == publicKey {
			k.mu.Unlock()
			return
		}
		k.store(senderID, receiverID, publicKey)
	} else {
		k.store(senderID, receiverID, publicKey)
	}
	reverseKey, haveReverse := k.keys[pairKey(receiverID, senderID)]
	k.mu.Unlock()

	k.reconcile(senderID, receiverID, publicKey, reverseKey, haveReverse)
}

// store must be called with the mutex held.
func (k *KeyExchange) store(senderID, receiverID, publicKey string) {
	k.keys[pairKey(senderID, receiverID)] = publicKey
	commonlog.Infof("store key sender=%s receiver=%s", senderID, receiverID)
}

// reconcile completes the two-way exchange once keys exist in both
// directions: each side gets the other's key. With no reverse entry the
// exchange waits for the other identity's own handshake.
func (k *KeyExchange) reconcile(senderID, receiverID, publicKey, reverseKey string, haveReverse bool) {
	if !haveReverse {
		commonlog.Infof("no reverse key yet sender=%s receiver=%s", senderID, receiverID)
		return
	}
	commonlog.Infof("key exchange sender=%s receiver=%s", senderID, receiverID)
	k.checkOnline(receiverID, senderID, reverseKey)
	k.checkOnline(senderID, receiverID, publicKey)
}

// checkOnline hands a key to the receiver: live delivery when online,
// offline save otherwise.
func (k *KeyExchange) checkOnline(senderID, receiverID, publicKey string) {
	if publicKey == "" {
		return
	}
	raw := domain.NewHandshakeEnvelope(senderID, receiverID, publicKey).Encode()
	if k.relay.IsOnline(receiverID) {
		k.relay.Deliver(receiverID, "", raw)
		commonlog.Infof("send key sender=%s receiver=%s", senderID, receiverID)
	} else {
		k.relay.SaveOffline(receiverID, "", raw)
		commonlog.Infof("save key sender=%s receiver=%s", senderID, receiverID)
	}
}

// Key returns the stored key for a direction, if any.
func (k *KeyExchange) Key(senderID, receiverID string) (string, bool) {
	k.mu.Lock()
	key, ok := k.keys[pairKey(senderID, receiverID)]
	k.mu.Unlock()
	return key, ok
}

// Stored reports the number of stored key directions.
func (k *KeyExchange) Stored() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
