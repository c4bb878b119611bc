package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paidmesh/paidmesh/pkg/message"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	table := NewTable()
	table.Register(1, func(msg *message.SignedMessage, ctx Context) []Action {
		return []Action{{Kind: ActionReply, ParentID: msg.ID, Text: "ack"}}
	}, ActionReply)

	msg := &message.SignedMessage{ID: "abc", Kind: 1}
	actions := table.Dispatch(msg, Context{Stored: true})
	require.Len(t, actions, 1)
	require.Equal(t, ActionReply, actions[0].Kind)
	require.Equal(t, "abc", actions[0].ParentID)
}

func TestDispatchDropsActionsOutsideAllowlist(t *testing.T) {
	table := NewTable()
	table.Register(2, func(msg *message.SignedMessage, ctx Context) []Action {
		return []Action{
			{Kind: ActionReply, Text: "allowed"},
			{Kind: ActionPublish, Msg: msg},
		}
	}, ActionReply)

	actions := table.Dispatch(&message.SignedMessage{Kind: 2}, Context{})
	require.Len(t, actions, 1)
	require.Equal(t, ActionReply, actions[0].Kind)
}

func TestDispatchNoHandlerReturnsNil(t *testing.T) {
	table := NewTable()
	require.False(t, table.HasHandler(99))
	require.Nil(t, table.Dispatch(&message.SignedMessage{Kind: 99}, Context{}))
}
