package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// fakeHub records every hub call the gateway makes.
type fakeHub struct {
	mu       sync.Mutex
	joined   []game.Player
	left     []string
	synced   []string
	commands []protocol.Command
}

func (h *fakeHub) HandleCommand(ctx context.Context, roomID, connID string, cmd protocol.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
}

func (h *fakeHub) PlayerJoined(roomID string, p game.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, p)
}

func (h *fakeHub) PlayerLeft(roomID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, playerID)
}

func (h *fakeHub) SyncConnection(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synced = append(h.synced, connID)
}

func (h *fakeHub) snapshot() fakeHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fakeHub{
		joined:   append([]game.Player(nil), h.joined...),
		left:     append([]string(nil), h.left...),
		synced:   append([]string(nil), h.synced...),
		commands: append([]protocol.Command(nil), h.commands...),
	}
}

func startGateway(t *testing.T) (*ConnectionManager, *fakeHub, *httptest.Server) {
	t.Helper()

	cm := NewConnectionManager(DefaultConnectionConfig())
	hub := &fakeHub{}
	cm.SetHub(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	handler := NewWebSocketHandler(cm)
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleRoomConnection))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return cm, hub, srv
}

func dialRoom(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPlayerConnectionJoinsAndSyncs(t *testing.T) {
	_, hub, srv := startGateway(t)

	dialRoom(t, srv, "room_id=r1&role=player&player_id=p1&name=Ana")

	require.Eventually(t, func() bool {
		s := hub.snapshot()
		return len(s.joined) == 1 && len(s.synced) == 1
	}, time.Second, 10*time.Millisecond)

	s := hub.snapshot()
	assert.Equal(t, "p1", s.joined[0].ID)
	assert.Equal(t, "Ana", s.joined[0].Name)
}

func TestDisplayConnectionSyncsWithoutJoining(t *testing.T) {
	_, hub, srv := startGateway(t)

	dialRoom(t, srv, "room_id=r1&role=display")

	require.Eventually(t, func() bool {
		return len(hub.snapshot().synced) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, hub.snapshot().joined)
}

func TestCommandFramesReachTheHub(t *testing.T) {
	_, hub, srv := startGateway(t)
	conn := dialRoom(t, srv, "room_id=r1&role=host")

	env, err := protocol.CommandEnvelope(protocol.Command{ID: "c1", Cmd: protocol.CmdStartGame})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	// A frame that decodes but carries no command is dropped, not routed
	require.NoError(t, conn.WriteJSON(protocol.Envelope{Type: "noise", Data: json.RawMessage(`{}`)}))

	require.Eventually(t, func() bool {
		return len(hub.snapshot().commands) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.CmdStartGame, hub.snapshot().commands[0].Cmd)
}

func TestBroadcastReachesRoomConnections(t *testing.T) {
	cm, _, srv := startGateway(t)
	conn := dialRoom(t, srv, "room_id=r1&role=display")
	other := dialRoom(t, srv, "room_id=r2&role=display")

	env, err := protocol.NewEnvelope(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{
		Players: []game.Player{{ID: "p1", Name: "Ana"}},
	})
	require.NoError(t, err)
	cm.BroadcastToRoom("r1", env)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got protocol.Envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, protocol.EventRoomUpdate, got.Type)

	// The other room hears nothing
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var stray protocol.Envelope
	assert.Error(t, other.ReadJSON(&stray))
}

func TestBroadcastDuringTeardownDoesNotPanic(t *testing.T) {
	cm, _, srv := startGateway(t)

	env, err := protocol.NewEnvelope(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{})
	require.NoError(t, err)

	// Hammer the room with broadcasts while connections come and go; a send
	// racing a pump teardown's channel close would panic the broadcast loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			cm.BroadcastToRoom("r1", env)
		}
	}()

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "?room_id=r1&role=display"
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					continue
				}
				if resp != nil && resp.Body != nil {
					resp.Body.Close()
				}
				conn.Close()
			}
		}()
	}
	wg.Wait()
	<-done

	require.Eventually(t, func() bool {
		return cm.GetConnectionStats()["total_connections"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPlayerDisconnectLeavesRoster(t *testing.T) {
	_, hub, srv := startGateway(t)
	conn := dialRoom(t, srv, "room_id=r1&role=player&player_id=p1&name=Ana")

	require.Eventually(t, func() bool {
		return len(hub.snapshot().joined) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		s := hub.snapshot()
		return len(s.left) == 1 && s.left[0] == "p1"
	}, time.Second, 10*time.Millisecond)
}
