// Package responder decides the protocol-level reply to an inbound message.
package responder

import "github.com/stfn-ko/Wasabi/pkg/message"

// Reply returns the automatic reply for msg. Only a Ping produces one, and
// only when autoPong is set; the Pong echoes the Ping payload.
func Reply(msg message.Message, autoPong bool) (message.Message, bool) {
	if !autoPong || !msg.IsPing() {
		return message.Message{}, false
	}
	return message.Pong(msg.Data()), true
}
