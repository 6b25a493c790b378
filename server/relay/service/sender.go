package service

import (
	"sync"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
)

type sendTask struct {
	receiverID string
	messageID  string
	raw        []byte
}

// Sender performs outbound delivery on a bounded pool of workers so a slow
// or blocked client cannot stall inbound frame handling. The queue is
// bounded; when it is full the envelope goes straight to the offline mailbox
// instead of blocking the caller.
type Sender struct {
	directory *Directory
	mailbox   *Mailbox

	mu     sync.Mutex
	closed bool
	tasks  chan sendTask
	wg     sync.WaitGroup
}

func NewSender(directory *Directory, mailbox *Mailbox, workers, queueSize int) *Sender {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &Sender{
		directory: directory,
		mailbox:   mailbox,
		tasks:     make(chan sendTask, queueSize),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Close stops accepting work and waits for in-flight sends to finish.
// Connections whose read loops outlive the shutdown keep calling Deliver;
// those envelopes land in the offline mailbox instead of a worker.
func (s *Sender) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Deliver schedules an envelope for the receiver. Fire-and-forget: delivery
// attempts and mailbox bookkeeping are idempotent, so retries via Flush are
// safe. A full queue or a closed sender falls back to the offline mailbox.
func (s *Sender) Deliver(receiverID, messageID string, raw []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		commonlog.Warnf("sender closed, queued offline identity=%s messageId=%s", receiverID, messageID)
		s.mailbox.Save(receiverID, messageID, raw)
		return
	}
	select {
	case s.tasks <- sendTask{receiverID: receiverID, messageID: messageID, raw: raw}:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		commonlog.Warnf("send queue full, queued offline identity=%s messageId=%s", receiverID, messageID)
		s.mailbox.Save(receiverID, messageID, raw)
	}
}

// Flush retries every envelope queued for an identity. Entries already
// marked delivered are dropped instead of re-sent. Called on reconnect.
func (s *Sender) Flush(identity string) {
	for _, entry := range s.mailbox.snapshot(identity) {
		if s.mailbox.Delivered(identity, entry.messageID) {
			s.mailbox.Delete(identity, entry.messageID)
			continue
		}
		commonlog.Infof("flush identity=%s messageId=%s", identity, entry.messageID)
		s.Deliver(identity, entry.messageID, entry.raw)
	}
}

func (s *Sender) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		s.attempt(task)
	}
}

// attempt sends if the receiver has a live open session, otherwise saves the
// envelope offline. A successful send still saves the envelope unless the
// ledger already marks it delivered: the receiver's explicit acknowledgment,
// not the send itself, is what clears the queue.
func (s *Sender) attempt(task sendTask) {
	conn, ok := s.directory.Lookup(task.receiverID)
	if !ok || !conn.IsOpen() {
		s.mailbox.Save(task.receiverID, task.messageID, task.raw)
		commonlog.Warnf("receiver offline identity=%s messageId=%s", task.receiverID, task.messageID)
		return
	}
	if err := conn.Send(task.raw); err != nil {
		s.mailbox.Save(task.receiverID, task.messageID, task.raw)
		commonlog.Errorf("send failed identity=%s messageId=%s error=%v", task.receiverID, task.messageID, err)
		return
	}
	if s.mailbox.Delivered(task.receiverID, task.messageID) {
		s.mailbox.Delete(task.receiverID, task.messageID)
	} else {
		s.mailbox.Save(task.receiverID, task.messageID, task.raw)
	}
}
