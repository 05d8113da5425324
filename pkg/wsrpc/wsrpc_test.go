package wsrpc_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/sessionmanager"
	"github.com/aiwhisperer/core/pkg/wsrpc"
)

func TestHubBroadcastsNotificationsToConnectedClients(t *testing.T) {
	hub := wsrpc.New()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectedClients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Sink()(sessionmanager.Notification{Method: "async.task.completed", Params: map[string]any{"agent": "planner"}})

	var got wsrpc.Notification
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "2.0", got.JSONRPC)
	require.Equal(t, "async.task.completed", got.Method)
	require.Equal(t, "planner", got.Params["agent"])
}
