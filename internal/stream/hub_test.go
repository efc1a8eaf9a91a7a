package stream

import (
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
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleConn))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(message, &frame))
	return frame
}

func TestSubscribeAck(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type: "subscribe",
		Items: []Item{
			{Venue: "crypto", Symbol: "BTC"},
			{Venue: "", Symbol: "dropped"},
		},
	}))

	ack := readFrame(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	items := ack["items"].([]interface{})
	require.Len(t, items, 1)

	require.Eventually(t, func() bool {
		return len(reg.WantedKeys()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"crypto:BTC"}, reg.WantedKeys())
}

func TestResubscribeReplacesInterestSet(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type:  "subscribe",
		Items: []Item{{Venue: "crypto", Symbol: "BTC"}},
	}))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type:  "subscribe",
		Items: []Item{{Venue: "stock", Symbol: "AAPL"}},
	}))
	readFrame(t, conn)

	assert.ElementsMatch(t, []string{"stock:AAPL"}, reg.WantedKeys())
}

func TestMalformedMessageKeepsConnectionAlive(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and still accepts a proper subscribe.
	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type:  "subscribe",
		Items: []Item{{Venue: "crypto", Symbol: "ETH"}},
	}))
	ack := readFrame(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
}

func TestHubSendDeliversToSubscriber(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type:  "subscribe",
		Items: []Item{{Venue: "crypto", Symbol: "BTC"}},
	}))
	readFrame(t, conn)

	connIDs := reg.ConnIDsFor("crypto:BTC")
	require.Len(t, connIDs, 1)

	hub.SendJSON(connIDs[0], TickFrame{Type: "tick", Venue: "crypto", Symbol: "BTC", Price: 42})
	frame := readFrame(t, conn)
	assert.Equal(t, "tick", frame["type"])
	assert.Equal(t, 42.0, frame["price"])
}

func TestDisconnectCleansUpRegistry(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(subscribeMessage{
		Type:  "subscribe",
		Items: []Item{{Venue: "crypto", Symbol: "BTC"}},
	}))
	readFrame(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(reg.WantedKeys()) == 0
	}, time.Second, 10*time.Millisecond)

	// Deliveries after disconnect are silent no-ops.
	hub.SendJSON("gone", TickFrame{Type: "tick"})
}

func TestSendDuringDisconnectIsNoOp(t *testing.T) {
	reg := NewRegistry()
	hub := NewHub(reg)
	message := []byte(`{"type":"tick"}`)

	// A delivery racing the teardown of its connection must never panic
	// on the closed send channel.
	for i := 0; i < 200; i++ {
		c := &client{id: "conn", send: make(chan []byte, 1)}
		hub.mu.Lock()
		hub.clients[c.id] = c
		hub.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Send("conn", message)
			}
		}()
		go func() {
			defer wg.Done()
			hub.remove(c)
		}()
		wg.Wait()
	}
}
