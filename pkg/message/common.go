package message

// DefaultPing is the ping sent by the default ping keybinding.
func DefaultPing() Message {
	return Ping(nil)
}

// DefaultPong is the pong used when no ping payload is available to echo.
func DefaultPong() Message {
	return Pong([]byte("pong"))
}

// NormalClose is the close frame sent by the default close keybinding.
func NormalClose() Message {
	return Close(CloseNormal, "connection close")
}
