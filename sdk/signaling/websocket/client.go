// Package websocket implements the signaling socket over gorilla/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64000
	defaultWebSocketHandshakeTimeout   = 5 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second
	defaultSendTimeout                 = time.Second
	defaultSendQueueSize               = 16

	// defaultPongWait - defaultPingInterval is how long the server has to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrDial          = errors.New("unable to dial signaling server")
	ErrAlreadyOpened = errors.New("socket is already open")
)

type (
	Config struct {
		Logger  *zerolog.Logger
		Metrics *metrics.Metrics
		URL     string
		Header  http.Header

		// zero values fall back to defaults
		PingInterval time.Duration
		PongWait     time.Duration
	}

	// Client is a signaling.Socket. It can be connected again after Close.
	Client struct {
		logger  zerolog.Logger
		metrics *metrics.Metrics
		dialer  *websocket.Dialer
		url     string
		header  http.Header

		pingInterval time.Duration
		pongWait     time.Duration

		mx      *sync.Mutex
		conn    *websocket.Conn
		tx      chan signaling.Message
		cancel  context.CancelFunc
		wg      *sync.WaitGroup
		closing bool
	}
)

var _ signaling.Socket = (*Client)(nil)

func NewClient(cfg Config) *Client {
	c := &Client{
		logger:  cfg.Logger.With().Str("component", "signaling-socket").Logger(),
		metrics: cfg.Metrics,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
		},
		url:          cfg.URL,
		header:       cfg.Header,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		mx:           &sync.Mutex{},
	}
	if c.pingInterval == 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.pongWait == 0 {
		c.pongWait = defaultPongWait
	}
	return c
}

func (c *Client) Connect(ctx context.Context, h signaling.Handler) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.conn != nil {
		return ErrAlreadyOpened
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.Join(ErrDial, err)
	}
	if err = ctx.Err(); err != nil {
		// nobody is waiting for this connection anymore
		webSocketCloser(conn, &c.logger)
		return errors.Join(ErrDial, err)
	}

	// long-living connection context, canceled by Close or by either loop exiting
	connCtx, cancel := context.WithCancel(context.Background())
	tx := make(chan signaling.Message, defaultSendQueueSize)
	wg := &sync.WaitGroup{}

	c.conn, c.tx, c.cancel, c.wg, c.closing = conn, tx, cancel, wg, false
	c.logger.Debug().Str("url", c.url).Msg("socket connected")

	wg.Add(2)
	go func() {
		rErr := webSocketReceiver(connCtx, wg, conn, c.pongWait, h, &c.logger)
		cancel()
		c.lost(conn, h, rErr)
	}()
	go func() {
		webSocketSender(connCtx, wg, conn, c.pingInterval, tx, c.metrics, &c.logger)
		cancel()
	}()
	return nil
}

// lost runs once the receive loop ended. Unless Close is in progress, the
// socket is torn down here and the handler learns about it.
func (c *Client) lost(conn *websocket.Conn, h signaling.Handler, err error) {
	c.mx.Lock()
	if c.conn != conn || c.closing {
		c.mx.Unlock()
		return
	}
	wg := c.wg
	c.conn, c.tx, c.cancel = nil, nil, nil
	c.mx.Unlock()

	go func() {
		wg.Wait()
		webSocketCloser(conn, &c.logger)
		if err == nil {
			err = signaling.ErrNotConnected
		}
		h.HandleDisconnect(err)
	}()
}

func (c *Client) Send(ctx context.Context, msg signaling.Outbound) error {
	m, err := signaling.Encode(msg)
	if err != nil {
		return err
	}

	c.mx.Lock()
	tx := c.tx
	c.mx.Unlock()
	if tx == nil {
		return signaling.ErrNotConnected
	}

	t := time.NewTimer(defaultSendTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return signaling.ErrSendTimeout
	case tx <- m:
		return nil
	}
}

// Close shuts the socket down and waits for its goroutines.
func (c *Client) Close() error {
	c.mx.Lock()
	if c.conn == nil {
		c.mx.Unlock()
		return nil
	}
	conn, cancel, wg := c.conn, c.cancel, c.wg
	c.closing = true
	c.mx.Unlock()

	cancel()
	// unblock a receiver parked in ReadMessage
	_ = conn.SetReadDeadline(time.Now())
	wg.Wait()
	webSocketCloser(conn, &c.logger)

	c.mx.Lock()
	c.conn, c.tx, c.cancel, c.wg = nil, nil, nil, nil
	c.mx.Unlock()
	c.logger.Debug().Msg("socket closed")
	return nil
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	pingInterval time.Duration,
	tx <-chan signaling.Message,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			// flush what was queued before close, e.g. leave_room
			for {
				select {
				case msg := <-tx:
					if wsErr := writeMessage(conn, msg, m, logger); wsErr != nil {
						break SendLoop
					}
				default:
					break SendLoop
				}
			}
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case msg := <-tx:
			if wsErr := writeMessage(conn, msg, m, logger); wsErr != nil {
				break SendLoop
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg signaling.Message, m *metrics.Metrics, logger *zerolog.Logger) error {
	b, wsErr := json.Marshal(&msg)
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to marshall outgoing message")
		return wsErr
	}

	wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
		return wsErr
	}
	wsW, wsErr := conn.NextWriter(websocket.TextMessage)
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
		return wsErr
	}
	if _, wsErr = wsW.Write(b); wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to write outgoing message")
		return wsErr
	}
	if wsErr = wsW.Close(); wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket writer")
		return wsErr
	}
	m.IncSignaling("out", msg.Type)
	logger.Trace().Str("type", msg.Type).Msg("message sent")
	return nil
}

// webSocketReceiver returns the error that ended the loop, or nil on cancellation.
func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	pongWait time.Duration,
	h signaling.Handler,
	logger *zerolog.Logger,
) error {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(pongWait)
	})
	if err := readDeadLineFunc(pongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return err
	}

	for {
		_, raw, wsErr := conn.ReadMessage()
		if ctx.Err() != nil {
			return nil
		}
		if wsErr != nil {
			if websocket.IsCloseError(wsErr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				logger.Warn().Err(wsErr).Msg("connection closed")
			} else {
				logger.Error().Err(wsErr).Msg("unexpected error during receive")
			}
			return wsErr
		}

		var msg signaling.Message
		if wsErr = json.Unmarshal(raw, &msg); wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to unmarshall incoming message")
			continue
		}
		// a message that arrived around the pong deadline still proves liveness
		if wsErr = readDeadLineFunc(pongWait); wsErr != nil {
			return wsErr
		}
		h.HandleMessage(msg)
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if wsErr != nil {
			logger.Debug().Err(wsErr).Msg("failed to send close message")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
