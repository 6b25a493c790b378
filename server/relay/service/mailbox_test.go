package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxSaveAndDelete(t *testing.T) {
	m := NewMailbox()
	m.Save("bob", "m1", []byte("one"))
	m.Save("bob", "m2", []byte("two"))
	require.Equal(t, 1, m.QueuedIdentities())
	require.Equal(t, 2, m.QueuedEnvelopes())

	m.Delete("bob", "m1")
	snapshot := m.snapshot("bob")
	require.Len(t, snapshot, 1)
	require.Equal(t, "m2", snapshot[0].messageID)

	// emptying the queue drops the identity entry entirely
	m.Delete("bob", "m2")
	require.Zero(t, m.QueuedIdentities())
	require.Nil(t, m.snapshot("bob"))
}

func TestMailboxDeleteRemovesDuplicates(t *testing.T) {
	m := NewMailbox()
	m.Save("bob", "m1", []byte("one"))
	m.Save("bob", "m1", []byte("one again"))
	m.Delete("bob", "m1")
	require.Zero(t, m.QueuedEnvelopes())
}

func TestMailboxDeleteUnknownMessageLeavesQueue(t *testing.T) {
	m := NewMailbox()
	m.Save("bob", "m1", []byte("one"))

	m.Delete("bob", "m2")

	snapshot := m.snapshot("bob")
	require.Len(t, snapshot, 1)
	require.Equal(t, "m1", snapshot[0].messageID)
}

func TestMailboxDeleteUnknownIdentity(t *testing.T) {
	m := NewMailbox()
	m.Delete("nobody", "m1")
	require.Zero(t, m.QueuedIdentities())
}

func TestLedgerWriteOnce(t *testing.T) {
	m := NewMailbox()
	require.False(t, m.Delivered("bob", "m1"))

	m.MarkDelivered("bob", "m1")
	require.True(t, m.Delivered("bob", "m1"))

	// repeated marks are no-ops and the mark is never cleared
	m.MarkDelivered("bob", "m1")
	require.True(t, m.Delivered("bob", "m1"))
	require.False(t, m.Delivered("alice", "m1"))
	require.False(t, m.Delivered("bob", "m2"))
}

func TestSnapshotToleratesConcurrentMutation(t *testing.T) {
	m := NewMailbox()
	m.Save("bob", "m1", []byte("one"))

	snapshot := m.snapshot("bob")
	m.Save("bob", "m2", []byte("two"))
	m.Delete("bob", "m1")

	require.Len(t, snapshot, 1)
	require.Equal(t, "m1", snapshot[0].messageID)
}
