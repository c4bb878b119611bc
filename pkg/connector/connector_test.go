package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectClientRoutesToRegisteredHandler(t *testing.T) {
	router := NewRouter()
	ctx := context.Background()

	serverSide := NewDirectClient(router, "g.node-b")
	serverSide.RegisterPacketHandler(func(ctx context.Context, dest string, amount uint64, data []byte) PacketResult {
		return PacketResult{Outcome: Fulfill, Data: []byte("ack:" + string(data))}
	})

	clientSide := NewDirectClient(router, "g.node-a")
	result, err := clientSide.SendPacket(ctx, "g.node-b", 100, []byte("hello"), 1000)
	require.NoError(t, err)
	require.Equal(t, Fulfill, result.Outcome)
	require.Equal(t, "ack:hello", string(result.Data))
}

func TestDirectClientRejectsUnknownDestination(t *testing.T) {
	router := NewRouter()
	client := NewDirectClient(router, "g.node-a")

	result, err := client.SendPacket(context.Background(), "g.unknown", 1, nil, 1000)
	require.NoError(t, err)
	require.Equal(t, Reject, result.Outcome)
	require.Equal(t, "T00", result.ErrorCode)
}

func TestDirectClientOpenChannelIsSynchronousAndOpen(t *testing.T) {
	router := NewRouter()
	client := NewDirectClient(router, "g.node-a")

	info, err := client.OpenChannel(context.Background(), "peer-b", "evm:base:8453", "USDC", 1000, 30)
	require.NoError(t, err)
	require.Equal(t, ChannelOpen, info.State)

	fetched, err := client.ChannelState(context.Background(), info.ChannelID)
	require.NoError(t, err)
	require.Equal(t, info.ChannelID, fetched.ChannelID)
}

func TestRemoteClientDoesNotRetryRejects(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"outcome": "reject", "errorCode": "F06", "errorMessage": "insufficient"})
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, RemoteConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	result, err := client.SendPacket(context.Background(), "g.dest", 10, []byte("x"), 1000)
	require.NoError(t, err)
	require.Equal(t, Reject, result.Outcome)
	require.Equal(t, "F06", result.ErrorCode)
	require.Equal(t, 1, calls, "an application-level reject must not be retried")
}
