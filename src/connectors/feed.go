package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

var errNotConnected = errors.New("feed not connected")

// bulletResponse is the token-issuance payload. The token endpoint hands out a
// short-lived websocket token plus the gateway instances to dial.
type bulletResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int    `json:"pingInterval"` // milliseconds
		} `json:"instanceServers"`
	} `json:"data"`
}

type controlFrame struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic,omitempty"`
	Response bool   `json:"response,omitempty"`
}

type feedFrame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// FeedConnection owns exactly one live websocket session to one market's
// price-feed gateway and keeps its subscribed topic set converged to the
// desired symbol set. The desired set survives disconnects in memory, so a
// reconnect replays every subscription without re-deriving it from the store.
type FeedConnection struct {
	market      Market
	tokenURL    string
	topicPrefix string
	parse       func(symbol string, data json.RawMessage) (PriceUpdate, bool)

	http   *resty.Client
	dialer *websocket.Dialer
	out    chan<- PriceUpdate

	reconnectMin time.Duration
	reconnectMax time.Duration

	// mu guards the topic bookkeeping.
	mu         sync.Mutex
	desired    map[string]struct{}
	subscribed map[string]struct{}

	// writeMu guards the socket pointer and serializes writes; gorilla allows
	// one concurrent writer and both the ping loop and subscription updates
	// write.
	writeMu sync.Mutex
	conn    *websocket.Conn

	wg sync.WaitGroup
}

// NewSpotFeed builds the feed connection for the spot market gateway.
func NewSpotFeed(cfg Config, out chan<- PriceUpdate) *FeedConnection {
	return newFeed(MarketSpot, cfg.SpotTokenURL, spotTopicPrefix, parseSpotSnapshot, cfg, out)
}

// NewFuturesFeed builds the feed connection for the futures market gateway.
func NewFuturesFeed(cfg Config, out chan<- PriceUpdate) *FeedConnection {
	return newFeed(MarketFutures, cfg.FuturesTokenURL, futuresTopicPrefix, parseFuturesSnapshot, cfg, out)
}

func newFeed(
	market Market,
	tokenURL string,
	topicPrefix string,
	parse func(string, json.RawMessage) (PriceUpdate, bool),
	cfg Config,
	out chan<- PriceUpdate,
) *FeedConnection {

	return &FeedConnection{
		market:      market,
		tokenURL:    tokenURL,
		topicPrefix: topicPrefix,
		parse:       parse,
		http:        resty.New().SetTimeout(cfg.TokenTimeout),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		out:          out,
		reconnectMin: cfg.ReconnectMin,
		reconnectMax: cfg.ReconnectMax,
		desired:      make(map[string]struct{}),
		subscribed:   make(map[string]struct{}),
	}
}

// Start runs the connection lifecycle until ctx is cancelled. Token fetch
// failures, dial failures, socket errors and socket closes all collapse into
// the same path: wait out the backoff and reconnect.
func (f *FeedConnection) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		backoff := f.reconnectMin
		for {
			if ctx.Err() != nil {
				return
			}

			opened, err := f.session(ctx)
			if ctx.Err() != nil {
				return
			}
			if opened {
				backoff = f.reconnectMin
			}
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"market":  f.market,
					"backoff": backoff.String(),
				}).WithError(err).Warn("feed session ended, scheduling reconnect")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > f.reconnectMax {
				backoff = f.reconnectMax
			}
		}
	}()
}

// Wait blocks until every connection goroutine has exited.
func (f *FeedConnection) Wait() {
	f.wg.Wait()
}

// session performs one full connect cycle: token, dial, resubscribe, ping
// loop, read loop. Returns opened=true once the socket handshake succeeded,
// which resets the caller's backoff.
func (f *FeedConnection) session(ctx context.Context) (opened bool, err error) {
	wsURL, pingInterval, err := f.fetchToken(ctx)
	if err != nil {
		return false, fmt.Errorf("token fetch failed: %w", err)
	}

	conn, _, err := f.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("ws dial failed: %w", err)
	}

	logger.WithField("market", f.market).Info("feed connected")

	f.setConn(conn)
	defer func() {
		f.setConn(nil)
		_ = conn.Close()
	}()

	if err := f.resubscribeAll(); err != nil {
		return true, fmt.Errorf("resubscribe failed: %w", err)
	}

	pingStop := make(chan struct{})
	defer close(pingStop)
	f.wg.Add(1)
	go f.pingLoop(ctx, pingInterval/2, pingStop)

	return true, f.readLoop(ctx, conn)
}

// resubscribeAll replays the full desired set onto a fresh socket. Nothing is
// subscribed server-side on a new session, so the live set starts empty.
func (f *FeedConnection) resubscribeAll() error {
	f.mu.Lock()
	symbols := make([]string, 0, len(f.desired))
	for symbol := range f.desired {
		symbols = append(symbols, symbol)
	}
	f.subscribed = make(map[string]struct{}, len(symbols))
	f.mu.Unlock()

	for _, symbol := range symbols {
		if err := f.writeJSON(controlFrame{
			ID:       uuid.NewString(),
			Type:     "subscribe",
			Topic:    f.topicPrefix + symbol,
			Response: true,
		}); err != nil {
			return err
		}
		f.mu.Lock()
		f.subscribed[symbol] = struct{}{}
		f.mu.Unlock()
	}

	return nil
}

func (f *FeedConnection) fetchToken(ctx context.Context) (string, time.Duration, error) {
	var bullet bulletResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&bullet).
		Post(f.tokenURL)
	if err != nil {
		return "", 0, err
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode())
	}
	if bullet.Code != "200000" {
		return "", 0, fmt.Errorf("token endpoint returned code %s", bullet.Code)
	}
	if len(bullet.Data.InstanceServers) == 0 {
		return "", 0, fmt.Errorf("token endpoint returned no instance servers")
	}

	server := bullet.Data.InstanceServers[0]
	pingInterval := time.Duration(server.PingInterval) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 18 * time.Second
	}

	wsURL := fmt.Sprintf("%s?token=%s&connectId=%s",
		server.Endpoint, bullet.Data.Token, uuid.NewString())

	return wsURL, pingInterval, nil
}

// pingLoop keeps the gateway from dropping the session. The server advertises
// its ping interval; we send at half of it.
func (f *FeedConnection) pingLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer f.wg.Done()

	if interval <= 0 {
		interval = 9 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			if err := f.writeJSON(controlFrame{ID: uuid.NewString(), Type: "ping"}); err != nil {
				return
			}
		}
	}
}

func (f *FeedConnection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		var frame feedFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue // not a JSON frame we understand
		}
		// Welcome, ack and pong frames carry no price data.
		if frame.Type != "message" || !strings.HasPrefix(frame.Topic, f.topicPrefix) {
			continue
		}

		symbol := strings.TrimPrefix(frame.Topic, f.topicPrefix)
		update, ok := f.parse(symbol, frame.Data)
		if !ok {
			continue
		}

		select {
		case f.out <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// UpdateSubscriptions converges the live topic set towards the desired symbol
// set, sending subscribe/unsubscribe frames only for the delta. Bookkeeping is
// optimistic (no waiting for server acks), which makes repeated identical
// calls no-ops. While disconnected only the desired set changes; the next
// session replays it in full.
func (f *FeedConnection) UpdateSubscriptions(symbols []string) {
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s != "" {
			want[s] = struct{}{}
		}
	}

	f.mu.Lock()
	f.desired = want
	var toSubscribe, toUnsubscribe []string
	for symbol := range want {
		if _, ok := f.subscribed[symbol]; !ok {
			toSubscribe = append(toSubscribe, symbol)
		}
	}
	for symbol := range f.subscribed {
		if _, ok := want[symbol]; !ok {
			toUnsubscribe = append(toUnsubscribe, symbol)
		}
	}
	f.mu.Unlock()

	for _, symbol := range toSubscribe {
		if err := f.writeJSON(controlFrame{
			ID:       uuid.NewString(),
			Type:     "subscribe",
			Topic:    f.topicPrefix + symbol,
			Response: true,
		}); err != nil {
			f.logWriteFailure("subscribe", err)
			return
		}
		f.mu.Lock()
		f.subscribed[symbol] = struct{}{}
		f.mu.Unlock()
	}

	for _, symbol := range toUnsubscribe {
		if err := f.writeJSON(controlFrame{
			ID:       uuid.NewString(),
			Type:     "unsubscribe",
			Topic:    f.topicPrefix + symbol,
			Response: true,
		}); err != nil {
			f.logWriteFailure("unsubscribe", err)
			return
		}
		f.mu.Lock()
		delete(f.subscribed, symbol)
		f.mu.Unlock()
	}
}

func (f *FeedConnection) logWriteFailure(op string, err error) {
	// Disconnected is the normal quiet case: the desired set is already
	// recorded and the next session replays it.
	if errors.Is(err, errNotConnected) {
		return
	}
	logger.WithField("market", f.market).WithError(err).
		Warnf("%s write failed, reconnect will replay", op)
}

// SubscribedCount reports the size of the live topic set, for health output.
func (f *FeedConnection) SubscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *FeedConnection) setConn(conn *websocket.Conn) {
	f.writeMu.Lock()
	f.conn = conn
	f.writeMu.Unlock()

	if conn == nil {
		// Socket gone; the live set it tracked is gone with it.
		f.mu.Lock()
		f.subscribed = make(map[string]struct{})
		f.mu.Unlock()
	}
}

func (f *FeedConnection) writeJSON(v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.conn == nil {
		return errNotConnected
	}
	return f.conn.WriteJSON(v)
}
