package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 50 * time.Second // control ping cadence
	readTimeout  = 90 * time.Second // ~2 missed pongs triggers reconnect
	writeTimeout = 10 * time.Second
)

// WebSocketTransport dials feed endpoints over WebSocket. The feed token, if
// any, is sent both as a bearer header and as the token query parameter.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
}

// NewWebSocketTransport returns a transport with permessage-deflate enabled.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{Dialer: &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}}
}

func (t *WebSocketTransport) Dial(ctx context.Context, target Target) (Stream, error) {
	u, header, err := withToken(target)
	if err != nil {
		return nil, err
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go s.pingLoop()
	return s, nil
}

func withToken(target Target) (string, http.Header, error) {
	if target.Token == "" {
		return target.URL, nil, nil
	}
	u, err := url.Parse(target.URL)
	if err != nil {
		return "", nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	if q.Get("token") == "" {
		q.Set("token", target.Token)
		u.RawQuery = q.Encode()
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+target.Token)
	return u.String(), header, nil
}

type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (s *wsStream) Read() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			s.conn.SetReadDeadline(time.Now().Add(readTimeout))
			return data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
