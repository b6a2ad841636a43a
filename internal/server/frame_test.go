package server

import (
	"errors"
	"io"
	"testing"

	"github.com/gorilla/websocket"
)

func TestClassifyFrame(t *testing.T) {
	tests := []struct {
		name        string
		messageType int
		payload     []byte
		err         error
		wantKind    FrameKind
		wantErr     bool
	}{
		{
			name:        "text frame",
			messageType: websocket.TextMessage,
			payload:     []byte("hi"),
			wantKind:    FrameText,
		},
		{
			name:        "binary frame is unsupported",
			messageType: websocket.BinaryMessage,
			payload:     []byte{0x01, 0x02},
			wantKind:    FrameUnsupported,
		},
		{
			name:     "normal close",
			err:      &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"},
			wantKind: FrameClose,
		},
		{
			name:     "close without status",
			err:      &websocket.CloseError{Code: websocket.CloseNoStatusReceived},
			wantKind: FrameClose,
		},
		{
			name:    "abnormal closure is a stream error",
			err:     &websocket.CloseError{Code: websocket.CloseAbnormalClosure},
			wantErr: true,
		},
		{
			name:    "EOF",
			err:     io.EOF,
			wantErr: true,
		},
		{
			name:    "read limit",
			err:     websocket.ErrReadLimit,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := classifyFrame(tt.messageType, tt.payload, tt.err)
			if tt.wantErr {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Expected error %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if frame.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", frame.Kind, tt.wantKind)
			}
		})
	}
}

func TestClassifyFrameCarriesDetails(t *testing.T) {
	frame, _ := classifyFrame(websocket.TextMessage, []byte("hello"), nil)
	if frame.Text != "hello" {
		t.Errorf("Text = %q, want %q", frame.Text, "hello")
	}

	frame, _ = classifyFrame(0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway, Text: "tab closed"})
	if frame.Code != websocket.CloseGoingAway || frame.Reason != "tab closed" {
		t.Errorf("Close frame = %+v", frame)
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{websocket.ErrCloseSent, true},
		{errors.New("write tcp 127.0.0.1:1->127.0.0.1:2: use of closed network connection"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("i/o timeout"), false},
	}

	for _, tt := range tests {
		if got := isExpectedCloseError(tt.err); got != tt.want {
			t.Errorf("isExpectedCloseError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFormatBroadcast(t *testing.T) {
	if got := FormatBroadcast("127.0.0.1:5000", "hi"); got != "127.0.0.1:5000: hi" {
		t.Errorf("FormatBroadcast = %q", got)
	}
}

func TestFrameKindString(t *testing.T) {
	tests := []struct {
		kind FrameKind
		want string
	}{
		{FrameText, "text"},
		{FrameClose, "close"},
		{FrameUnsupported, "unsupported"},
		{FrameKind(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("FrameKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
