package service

import (
	"errors"
	"sync"

	"github.com/rifatismailov/server-cube/server/relay/domain"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	open     bool
	failSend bool
	frames   [][]byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true}
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return errors.New("connection closed")
	}
	if c.failSend {
		return errors.New("transport failure")
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// envelopes decodes every frame that parses as an envelope with the given
// operation.
func (c *fakeConn) envelopes(operation string) []domain.Envelope {
	var out []domain.Envelope
	for _, frame := range c.sent() {
		env, err := domain.ParseEnvelope(frame)
		if err != nil {
			continue
		}
		if env.Operation == operation {
			out = append(out, env)
		}
	}
	return out
}
