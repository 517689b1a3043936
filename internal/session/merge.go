package session

import (
	"context"
	"errors"

	"github.com/stfn-ko/Wasabi/internal/broadcast"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// errRepliesClosed is returned by merger.Next once the read task has exited.
var errRepliesClosed = errors.New("reply channel closed")

// source identifies which input of the merge produced a message.
type source int

const (
	fromBroadcast source = iota + 1
	fromReply
)

// merger combines a broadcast subscription and a reply channel into one stream.
//
// When both inputs are ready the choice is made by select and is unspecified.
// Order within each input is preserved. A closed subscription is drained and
// then ignored; a closed reply channel ends the stream.
type merger struct {
	sub       *broadcast.Subscription
	replies   <-chan message.Message
	subClosed bool
}

func newMerger(sub *broadcast.Subscription, replies <-chan message.Message) *merger {
	return &merger{
		sub:       sub,
		replies:   replies,
		subClosed: sub == nil,
	}
}

// Next blocks until a message is available from either input.
func (m *merger) Next(ctx context.Context) (message.Message, source, error) {
	for {
		var ready, subDone <-chan struct{}
		if !m.subClosed {
			ready = m.sub.Ready()
			subDone = m.sub.Done()
		}

		select {
		case <-ctx.Done():
			return message.Message{}, 0, ctx.Err()
		case msg, ok := <-m.replies:
			if !ok {
				return message.Message{}, 0, errRepliesClosed
			}
			return msg, fromReply, nil
		case <-ready:
			if msg, ok := m.sub.TryRecv(); ok {
				return msg, fromBroadcast, nil
			}
		case <-subDone:
			if msg, ok := m.sub.TryRecv(); ok {
				return msg, fromBroadcast, nil
			}
			m.subClosed = true
		}
	}
}
