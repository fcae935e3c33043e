package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	redialPause  = 2 * time.Second
	maxRedialGap = 30 * time.Second
)

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Socket is the websocket-backed Channel. It authenticates with the session
// token, dispatches named signals to subscribers, and redials on connection
// loss, raising SignalResync after every successful reconnect so the engine
// re-pulls whatever it missed.
type Socket struct {
	url   string
	token string

	bus *Bus

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Channel = (*Socket)(nil)

func NewSocket(socketURL, token string) *Socket {
	return &Socket{
		url:   socketURL,
		token: token,
		bus:   NewBus(),
		done:  make(chan struct{}),
	}
}

func (s *Socket) Subscribe(sig Signal, h Handler) func() {
	return s.bus.Subscribe(sig, h)
}

func (s *Socket) Open() error {
	conn, err := s.dial()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Socket) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+s.token, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return conn, nil
}

func (s *Socket) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Socket) readLoop() {
	defer s.wg.Done()
	for {
		conn := s.current()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.redial() {
				return
			}
			continue
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Log.Debug("socket_bad_frame", zap.Error(err))
			continue
		}
		sig := Signal(ev.Event)
		switch sig {
		case SignalNewMessage, SignalMessagesRead:
			metrics.SignalsReceived.WithLabelValues(string(sig)).Inc()
			s.bus.Emit(sig)
		}
	}
}

// redial reconnects with a capped linear backoff. Returns false once the
// socket has been closed for good.
func (s *Socket) redial() bool {
	pause := redialPause
	for {
		select {
		case <-s.done:
			return false
		case <-time.After(pause):
		}

		conn, err := s.dial()
		if err != nil {
			logger.Log.Warn("socket_redial_failed", zap.Error(err))
			if pause < maxRedialGap {
				pause += redialPause
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.mu.Unlock()

		metrics.Reconnects.Inc()
		logger.Log.Info("socket_reconnected")
		s.bus.Emit(SignalResync)
		return true
	}
}

func (s *Socket) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			conn := s.current()
			if conn == nil {
				continue
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
	}
}
