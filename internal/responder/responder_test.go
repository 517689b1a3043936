package responder

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stfn-ko/Wasabi/pkg/message"
)

func TestReply(t *testing.T) {
	tests := []struct {
		name     string
		msg      message.Message
		autoPong bool
		wantOK   bool
	}{
		{"ping with auto pong", message.Ping([]byte("hb")), true, true},
		{"ping without auto pong", message.Ping([]byte("hb")), false, false},
		{"text", message.Text("hello"), true, false},
		{"binary", message.Binary([]byte{1, 2}), true, false},
		{"pong", message.Pong([]byte("pong")), true, false},
		{"close", message.NormalClose(), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := Reply(tt.msg, tt.autoPong)
			if ok != tt.wantOK {
				t.Fatalf("Reply() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !reply.IsPong() {
				t.Errorf("expected pong reply, got %v", reply)
			}
		})
	}
}

func TestReplyEchoesPayload(t *testing.T) {
	reply, ok := Reply(message.Ping([]byte("abc")), true)
	if !ok {
		t.Fatal("expected a reply")
	}
	if !bytes.Equal(reply.Data(), []byte("abc")) {
		t.Errorf("expected payload %q, got %q", "abc", reply.Data())
	}
}

func genMessage() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 4),
		gen.AlphaString(),
	).Map(func(values []interface{}) message.Message {
		s := values[1].(string)
		switch values[0].(int) {
		case 0:
			return message.Text(s)
		case 1:
			return message.Binary([]byte(s))
		case 2:
			return message.Ping([]byte(s))
		case 3:
			return message.Pong([]byte(s))
		default:
			return message.Close(message.CloseNormal, s)
		}
	})
}

// With auto pong enabled, the number of replies equals the number of inbound pings.
func TestReplyCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one pong per ping and nothing else", prop.ForAll(
		func(msgs []message.Message, autoPong bool) bool {
			pings, pongs := 0, 0
			for _, m := range msgs {
				if m.IsPing() {
					pings++
				}
				reply, ok := Reply(m, autoPong)
				if !ok {
					continue
				}
				if !reply.IsPong() || !m.IsPing() {
					return false
				}
				pongs++
			}
			if autoPong {
				return pongs == pings
			}
			return pongs == 0
		},
		gen.SliceOf(genMessage()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
