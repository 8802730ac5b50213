package gesture

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"shameless/internal/scratch"

	"github.com/fasthttp/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	outboundBuffer = 64
)

// wsConn is the part of a websocket connection a session drives.
type wsConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	Close() error
}

// ============================================================
// Session
// ============================================================

// session binds one websocket connection to one surface. The read loop is
// the only goroutine touching the surface; the write loop owns the socket
// writes.
type session struct {
	id      string
	conn    wsConn
	surface *scratch.Surface

	out      chan any
	revealed chan struct{}
	done     chan struct{}

	// queued counts frames handed to out. Read loop only.
	queued int64
	// revealAt is the number of frames that must be written before an
	// overflowed revealed notification may go out.
	revealAt atomic.Int64
}

func newSession(id string, conn wsConn, image scratch.ImageRef, side float64, opts []scratch.Option) *session {
	s := &session{
		id:       id,
		conn:     conn,
		out:      make(chan any, outboundBuffer),
		revealed: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.surface = scratch.NewSurface(image, side, s.notifyRevealed, opts...)
	return s
}

func (s *session) positionID() string {
	return s.surface.Image().PositionID
}

// notifyRevealed runs inside Finalize on the read loop and must not block.
// With a full queue it records how many frames precede it and leaves the
// write loop to send it once those are out.
func (s *session) notifyRevealed() {
	select {
	case s.out <- s.revealedMessage():
		s.queued++
	default:
		s.revealAt.Store(s.queued)
		select {
		case s.revealed <- struct{}{}:
		default:
		}
	}
}

func (s *session) run() {
	go s.writeLoop()

	if s.send(ReadyMessage{
		Type:       TypeReady,
		SessionID:  s.id,
		PositionID: s.positionID(),
		Side:       s.surface.Side(),
	}) {
		s.readLoop()
	}
	close(s.out)
	<-s.done
}

func (s *session) send(msg any) bool {
	select {
	case s.out <- msg:
		s.queued++
		return true
	case <-s.done:
		return false
	}
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[GESTURE] session %s read error: %v", s.id, err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if reply := s.handle(data); reply != nil && !s.send(reply) {
			return
		}
	}
}

// handle applies one client frame to the surface and returns the reply, if any.
func (s *session) handle(data []byte) any {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorMessage("invalid message")
	}

	switch msg.Type {
	case TypeStart:
		p, ok := msg.point()
		if !ok {
			return errorMessage("x and y required")
		}
		s.surface.Start(p)
		return nil

	case TypeUpdate:
		p, ok := msg.point()
		if !ok {
			return errorMessage("x and y required")
		}
		from := s.surface.Pointer()
		if !s.surface.Update(p) {
			return nil
		}
		return SegmentMessage{
			Type:     TypeSegment,
			From:     from,
			To:       p,
			Coverage: s.surface.Coverage(),
			Ratio:    s.surface.Ratio(),
		}

	case TypeFinalize:
		if s.surface.Finalize() {
			log.Printf("[GESTURE] session %s revealed position %s", s.id, s.positionID())
		}
		return nil

	case TypeSnapshot:
		path := s.surface.Path()
		return PathMessage{
			Type:     TypePath,
			D:        path.String(),
			Coverage: s.surface.Coverage(),
			Ratio:    s.surface.Ratio(),
			State:    s.surface.State().String(),
		}
	}

	return errorMessage("unknown message type")
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	var written int64
	pending := false

	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				if pending && s.writeRevealed() != nil {
					return
				}
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.write(msg); err != nil {
				return
			}
			written++
			if pending && written >= s.revealAt.Load() {
				pending = false
				if s.writeRevealed() != nil {
					return
				}
			}

		case <-s.revealed:
			if written < s.revealAt.Load() {
				pending = true
				continue
			}
			if s.writeRevealed() != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) revealedMessage() RevealedMessage {
	return RevealedMessage{
		Type:       TypeRevealed,
		SessionID:  s.id,
		PositionID: s.positionID(),
	}
}

func (s *session) writeRevealed() error {
	return s.write(s.revealedMessage())
}

func (s *session) write(msg any) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("[GESTURE] session %s write error: %v", s.id, err)
		return err
	}
	return nil
}
