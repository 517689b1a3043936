// Command wasabi-client connects to a WebSocket server and sends keybound
// messages to it.
package main

import (
	"os"

	"github.com/stfn-ko/Wasabi/internal/app"
	"github.com/stfn-ko/Wasabi/internal/model"
)

func main() {
	os.Exit(app.Main(model.RoleInitiator, app.Defaults{
		Address:     "ws://127.0.0.1:8080",
		Greeting:    "hello server",
		TestMessage: "client test message",
	}))
}
