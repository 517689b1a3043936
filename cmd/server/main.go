// Command wasabi-server accepts WebSocket connections and sends keybound
// messages to every connected client.
package main

import (
	"os"

	"github.com/stfn-ko/Wasabi/internal/app"
	"github.com/stfn-ko/Wasabi/internal/model"
)

func main() {
	os.Exit(app.Main(model.RoleAcceptor, app.Defaults{
		Address:     "127.0.0.1:8080",
		Greeting:    "welcome",
		TestMessage: "server test message",
	}))
}
