package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rifatismailov/server-cube/server/relay/domain"
)

type fakeRelayContext struct {
	mu        sync.Mutex
	online    map[string]bool
	delivered map[string][][]byte
	saved     map[string][][]byte
}

func newFakeRelayContext() *fakeRelayContext {
	return &fakeRelayContext{
		online:    map[string]bool{},
		delivered: map[string][][]byte{},
		saved:     map[string][][]byte{},
	}
}

func (f *fakeRelayContext) Deliver(receiverID, messageID string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[receiverID] = append(f.delivered[receiverID], raw)
}

func (f *fakeRelayContext) SaveOffline(receiverID, messageID string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[receiverID] = append(f.saved[receiverID], raw)
}

func (f *fakeRelayContext) IsOnline(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[identity]
}

func (f *fakeRelayContext) setOnline(identity string, online bool) {
	f.mu.Lock()
	f.online[identity] = online
	f.mu.Unlock()
}

func (f *fakeRelayContext) deliveredKeys(identity string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, raw := range f.delivered[identity] {
		env, err := domain.ParseEnvelope(raw)
		if err != nil {
			continue
		}
		key, err := env.HandshakeKey()
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (f *fakeRelayContext) savedCount(identity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved[identity])
}

func TestFirstHandshakeOnlyStores(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("A", true)
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")

	key, ok := engine.Key("A", "B")
	require.True(t, ok)
	require.Equal(t, "kA", key)
	require.Empty(t, ctx.deliveredKeys("A"))
	require.Empty(t, ctx.deliveredKeys("B"))
	require.Zero(t, ctx.savedCount("A"))
	require.Zero(t, ctx.savedCount("B"))
}

func TestHandshakeCompletesBothWays(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("A", true)
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")
	engine.Handle("B", "A", "kB")

	require.Equal(t, []string{"kB"}, ctx.deliveredKeys("A"))
	require.Equal(t, []string{"kA"}, ctx.deliveredKeys("B"))
}

func TestHandshakeOfflineSideIsSaved(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")
	engine.Handle("B", "A", "kB")

	// B is online and receives A's key live; A is offline, so B's key is
	// parked in the offline queue
	require.Equal(t, []string{"kA"}, ctx.deliveredKeys("B"))
	require.Empty(t, ctx.deliveredKeys("A"))
	require.Equal(t, 1, ctx.savedCount("A"))
}

func TestUnchangedResubmissionDoesNotReExchange(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("A", true)
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")
	engine.Handle("B", "A", "kB")
	require.Len(t, ctx.deliveredKeys("A"), 1)
	require.Len(t, ctx.deliveredKeys("B"), 1)

	engine.Handle("A", "B", "kA")

	require.Len(t, ctx.deliveredKeys("A"), 1)
	require.Len(t, ctx.deliveredKeys("B"), 1)
}

func TestChangedKeyTriggersReExchange(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("A", true)
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")
	engine.Handle("B", "A", "kB")

	engine.Handle("A", "B", "kA2")

	key, ok := engine.Key("A", "B")
	require.True(t, ok)
	require.Equal(t, "kA2", key)
	// full bidirectional exchange runs again: A gets kB once more, B gets
	// the replacement key
	require.Equal(t, []string{"kB", "kB"}, ctx.deliveredKeys("A"))
	require.Equal(t, []string{"kA", "kA2"}, ctx.deliveredKeys("B"))
}

func TestHandshakeWithoutReverseStaysSilent(t *testing.T) {
	ctx := newFakeRelayContext()
	ctx.setOnline("A", true)
	ctx.setOnline("B", true)
	engine := NewKeyExchange(ctx)

	engine.Handle("A", "B", "kA")
	engine.Handle("A", "C", "kA")

	require.Empty(t, ctx.deliveredKeys("A"))
	require.Empty(t, ctx.deliveredKeys("B"))
	require.Empty(t, ctx.deliveredKeys("C"))
}
