package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSEngine is a continuous engine speaking the backend's realtime audio
// websocket. Audio goes up as base64 chunks, transcript segments come back as
// stt_result messages.
type WSEngine struct {
	URL string

	// Bearer resolves the token for the dial handshake. Nil dials without
	// auth (local development backends).
	Bearer func(ctx context.Context) (string, error)

	Dialer *websocket.Dialer
}

type wsClientMsg struct {
	Type        string `json:"type"`
	ChunkIndex  int64  `json:"chunk_index"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	IsFinal     bool   `json:"is_final"`
}

type wsServerMsg struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
}

func (e *WSEngine) Start(ctx context.Context) (LiveSession, error) {
	d := e.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}

	h := http.Header{}
	if e.Bearer != nil {
		tok, err := e.Bearer(ctx)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+tok)
	}

	conn, _, err := d.DialContext(ctx, e.URL, h)
	if err != nil {
		return nil, err
	}

	s := &wsSession{
		conn: conn,
		segs: make(chan Segment, 16),
		done: make(chan struct{}),
	}
	go s.recv()
	return s, nil
}

type wsSession struct {
	conn *websocket.Conn

	wmu    sync.Mutex // serializes writes; gorilla allows one writer at a time
	chunks int64

	mu     sync.Mutex
	closed bool
	err    error

	segs chan Segment
	done chan struct{} // closed in Close; unblocks a recv stuck on segs
}

func (s *wsSession) writeJSON(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) Send(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil // late frame after teardown, drop
	}
	s.mu.Unlock()

	s.wmu.Lock()
	s.chunks++
	idx := s.chunks
	s.wmu.Unlock()

	return s.writeJSON(wsClientMsg{
		Type:        "audio_chunk",
		ChunkIndex:  idx,
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (s *wsSession) Segments() <-chan Segment { return s.segs }

func (s *wsSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)

	_ = s.writeJSON(wsClientMsg{Type: "end_session"})
	return s.conn.Close()
}

func (s *wsSession) recv() {
	defer close(s.segs)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var msg wsServerMsg
		if json.Unmarshal(data, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "stt_result":
			if msg.Text == "" {
				continue
			}
			select {
			case s.segs <- Segment{Text: msg.Text, Final: msg.IsFinal, Confidence: msg.Confidence}:
			case <-s.done:
				return
			}
		case "status":
			if msg.Status == "failed" {
				s.mu.Lock()
				if !s.closed {
					s.err = errors.New("realtime transcription failed: " + msg.Message)
				}
				s.mu.Unlock()
				return
			}
		}
	}
}
