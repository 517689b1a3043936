package ws

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// Encode returns the gorilla frame type and payload for msg.
func Encode(msg message.Message) (int, []byte, error) {
	switch msg.Kind() {
	case message.KindText:
		return websocket.TextMessage, []byte(msg.Text()), nil
	case message.KindBinary:
		return websocket.BinaryMessage, msg.Data(), nil
	case message.KindPing:
		return websocket.PingMessage, msg.Data(), nil
	case message.KindPong:
		return websocket.PongMessage, msg.Data(), nil
	case message.KindClose:
		return websocket.CloseMessage, websocket.FormatCloseMessage(msg.Code(), msg.Text()), nil
	default:
		return 0, nil, fmt.Errorf("%w: cannot encode %s", model.ErrSend, msg.Kind())
	}
}

// Decode builds a message from a frame. A text frame or close reason that is
// not valid UTF-8 fails with model.ErrFrameDecode.
func Decode(frameType int, payload []byte) (message.Message, error) {
	switch frameType {
	case websocket.TextMessage:
		if !utf8.Valid(payload) {
			return message.Message{}, fmt.Errorf("%w: text frame is not valid UTF-8", model.ErrFrameDecode)
		}
		return message.Text(string(payload)), nil
	case websocket.BinaryMessage:
		return message.Binary(payload), nil
	case websocket.PingMessage:
		return message.Ping(payload), nil
	case websocket.PongMessage:
		return message.Pong(payload), nil
	case websocket.CloseMessage:
		return decodeClose(payload)
	default:
		return message.Message{}, fmt.Errorf("%w: unknown frame type %d", model.ErrFrameDecode, frameType)
	}
}

func decodeClose(payload []byte) (message.Message, error) {
	if len(payload) == 0 {
		return message.Close(message.CloseNoStatus, ""), nil
	}
	if len(payload) < 2 {
		return message.Message{}, fmt.Errorf("%w: close payload too short", model.ErrFrameDecode)
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return message.Message{}, fmt.Errorf("%w: close reason is not valid UTF-8", model.ErrFrameDecode)
	}
	code := int(binary.BigEndian.Uint16(payload))
	return message.Close(code, string(reason)), nil
}
