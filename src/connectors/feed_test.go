package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeGateway plays the token endpoint and the websocket gateway in one
// httptest server, recording every control frame the feed writes.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server

	frames chan controlFrame

	mu       sync.Mutex
	conns    []*websocket.Conn
	sessions int
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:      t,
		frames: make(chan controlFrame, 64),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wsEndpoint := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws"
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"code": "200000",
			"data": {
				"token": "test-token",
				"instanceServers": [
					{"endpoint": %q, "pingInterval": 200}
				]
			}
		}`, wsEndpoint)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.sessions++
		g.mu.Unlock()

		for {
			var frame controlFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type == "ping" {
				continue
			}
			g.frames <- frame
		}
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) tokenURL() string {
	return g.server.URL + "/token"
}

// dropConnections closes every live socket server-side, forcing a reconnect.
func (g *fakeGateway) dropConnections() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.conns {
		_ = conn.Close()
	}
	g.conns = nil
}

func (g *fakeGateway) sessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions
}

// push sends a raw frame to every live socket.
func (g *fakeGateway) push(frame string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.conns {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// collectFrames reads control frames until the wanted number of topics per
// type has been seen or the timeout expires.
func collectFrames(t *testing.T, frames <-chan controlFrame, want int) map[string][]string {
	t.Helper()

	got := make(map[string][]string)
	seen := 0
	deadline := time.After(5 * time.Second)
	for seen < want {
		select {
		case frame := <-frames:
			got[frame.Type] = append(got[frame.Type], frame.Topic)
			seen++
		case <-deadline:
			t.Fatalf("timed out waiting for control frames, got %v", got)
		}
	}
	return got
}

func testConfig(g *fakeGateway) Config {
	return Config{
		SpotTokenURL:     g.tokenURL(),
		FuturesTokenURL:  g.tokenURL(),
		ReconnectMin:     10 * time.Millisecond,
		ReconnectMax:     100 * time.Millisecond,
		HandshakeTimeout: 2 * time.Second,
		TokenTimeout:     2 * time.Second,
	}
}

func TestFeedSubscribesDesiredSymbols(t *testing.T) {
	g := newFakeGateway(t)
	out := make(chan PriceUpdate, 16)

	feed := NewSpotFeed(testConfig(g), out)

	ctx, cancel := context.WithCancel(context.Background())
	defer feed.Wait()
	defer cancel()

	feed.UpdateSubscriptions([]string{"BTC-USDT", "ETH-USDT"})
	feed.Start(ctx)

	got := collectFrames(t, g.frames, 2)
	require.ElementsMatch(t,
		[]string{"/market/snapshot:BTC-USDT", "/market/snapshot:ETH-USDT"},
		got["subscribe"])
	require.Eventually(t, func() bool { return feed.SubscribedCount() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestFeedSendsDeltaFramesOnly(t *testing.T) {
	g := newFakeGateway(t)
	out := make(chan PriceUpdate, 16)

	feed := NewSpotFeed(testConfig(g), out)

	ctx, cancel := context.WithCancel(context.Background())
	defer feed.Wait()
	defer cancel()

	feed.UpdateSubscriptions([]string{"A", "B"})
	feed.Start(ctx)
	collectFrames(t, g.frames, 2)

	// Identical set: nothing should be written.
	feed.UpdateSubscriptions([]string{"A", "B"})

	// Changed set: subscribe C, unsubscribe A, leave B alone.
	feed.UpdateSubscriptions([]string{"B", "C"})

	got := collectFrames(t, g.frames, 2)
	require.Equal(t, []string{"/market/snapshot:C"}, got["subscribe"])
	require.Equal(t, []string{"/market/snapshot:A"}, got["unsubscribe"])
	require.Eventually(t, func() bool { return feed.SubscribedCount() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestFeedReplaysDesiredSetAfterReconnect(t *testing.T) {
	g := newFakeGateway(t)
	out := make(chan PriceUpdate, 16)

	feed := NewSpotFeed(testConfig(g), out)

	ctx, cancel := context.WithCancel(context.Background())
	defer feed.Wait()
	defer cancel()

	feed.UpdateSubscriptions([]string{"A", "B", "C"})
	feed.Start(ctx)
	collectFrames(t, g.frames, 3)

	g.dropConnections()

	got := collectFrames(t, g.frames, 3)
	require.ElementsMatch(t,
		[]string{"/market/snapshot:A", "/market/snapshot:B", "/market/snapshot:C"},
		got["subscribe"])
	require.GreaterOrEqual(t, g.sessionCount(), 2)
}

func TestFeedEmitsPriceUpdates(t *testing.T) {
	g := newFakeGateway(t)
	out := make(chan PriceUpdate, 16)

	feed := NewSpotFeed(testConfig(g), out)

	ctx, cancel := context.WithCancel(context.Background())
	defer feed.Wait()
	defer cancel()

	feed.UpdateSubscriptions([]string{"BTC-USDT"})
	feed.Start(ctx)
	collectFrames(t, g.frames, 1)

	frame := map[string]interface{}{
		"type":  "message",
		"topic": "/market/snapshot:BTC-USDT",
		"data":  map[string]interface{}{"data": map[string]interface{}{"lastTradedPrice": "59999"}},
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	g.push(string(raw))

	// Welcome-style frames must be ignored, not break the stream.
	g.push(`{"id":"x","type":"welcome"}`)

	select {
	case update := <-out:
		require.Equal(t, MarketSpot, update.Market)
		require.Equal(t, "BTC-USDT", update.Symbol)
		require.InDelta(t, 59999, update.Price, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for price update")
	}
}

func TestFeedRetriesWhenTokenEndpointIsDown(t *testing.T) {
	mux := http.NewServeMux()
	var mu sync.Mutex
	calls := 0
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	out := make(chan PriceUpdate, 1)
	feed := NewSpotFeed(Config{
		SpotTokenURL:     server.URL + "/token",
		ReconnectMin:     5 * time.Millisecond,
		ReconnectMax:     20 * time.Millisecond,
		HandshakeTimeout: time.Second,
		TokenTimeout:     time.Second,
	}, out)

	ctx, cancel := context.WithCancel(context.Background())
	feed.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 5*time.Second, 10*time.Millisecond, "feed must keep retrying the token endpoint")

	cancel()
	feed.Wait()
}
