// Package server classifies frames read from a WebSocket connection into the
// kinds the relay acts on.
package server

import (
	"errors"
	"strings"

	"github.com/gorilla/websocket"
)

// FrameKind tags an InboundFrame.
type FrameKind int

const (
	// FrameText carries a UTF-8 payload to broadcast.
	FrameText FrameKind = iota
	// FrameClose means the peer sent a close frame.
	FrameClose
	// FrameUnsupported covers binary and any other non-text data frame.
	FrameUnsupported
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameClose:
		return "close"
	case FrameUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// InboundFrame is one frame read from a peer.
type InboundFrame struct {
	Kind FrameKind
	// Text is the payload of a FrameText.
	Text string
	// Code and Reason are set for FrameClose.
	Code   int
	Reason string
	// MessageType is the raw websocket opcode for FrameUnsupported.
	MessageType int
}

// classifyFrame maps the result of Conn.ReadMessage to an InboundFrame.
// Close frames surface from gorilla as a *websocket.CloseError; any other
// error is returned unchanged and ends the inbound loop.
func classifyFrame(messageType int, payload []byte, err error) (InboundFrame, error) {
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
			return InboundFrame{Kind: FrameClose, Code: closeErr.Code, Reason: closeErr.Text}, nil
		}
		return InboundFrame{}, err
	}

	if messageType == websocket.TextMessage {
		return InboundFrame{Kind: FrameText, Text: string(payload)}, nil
	}
	return InboundFrame{Kind: FrameUnsupported, MessageType: messageType}, nil
}

// isExpectedCloseError reports errors that are routine when a connection is
// torn down from either side.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
