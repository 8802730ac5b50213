package gesture

import "shameless/internal/scratch"

// ============================================================
// Wire messages
// ============================================================

const (
	TypeStart    = "start"
	TypeUpdate   = "update"
	TypeFinalize = "finalize"
	TypeSnapshot = "snapshot"

	TypeReady    = "ready"
	TypeSegment  = "segment"
	TypePath     = "path"
	TypeRevealed = "revealed"
	TypeError    = "error"
)

// ClientMessage is a pointer event sent by the client. X and Y are required
// for start and update.
type ClientMessage struct {
	Type string   `json:"type"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

func (m ClientMessage) point() (scratch.Point, bool) {
	if m.X == nil || m.Y == nil {
		return scratch.Point{}, false
	}
	return scratch.Point{X: *m.X, Y: *m.Y}, true
}

type ReadyMessage struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id"`
	PositionID string  `json:"position_id,omitempty"`
	Side       float64 `json:"side"`
}

// SegmentMessage is sent for every accepted move so the client can extend
// its mask without re-rendering the whole path.
type SegmentMessage struct {
	Type     string        `json:"type"`
	From     scratch.Point `json:"from"`
	To       scratch.Point `json:"to"`
	Coverage float64       `json:"coverage"`
	Ratio    float64       `json:"ratio"`
}

type PathMessage struct {
	Type     string  `json:"type"`
	D        string  `json:"d"`
	Coverage float64 `json:"coverage"`
	Ratio    float64 `json:"ratio"`
	State    string  `json:"state"`
}

type RevealedMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	PositionID string `json:"position_id,omitempty"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func errorMessage(text string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: text}
}
