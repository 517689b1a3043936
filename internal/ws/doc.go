// Package ws adapts gorilla/websocket connections to Wasabi messages.
//
// The package implements:
//   - Codec: Encode and Decode between gorilla frame types and message.Message
//   - Conn: a message-level connection whose reads surface ping, pong and close
//     frames instead of answering them inside the library
//   - Dial and Upgrade: the initiator and acceptor handshakes
//
// Replies to control frames are the caller's job. A Conn never answers a ping
// or echoes a close on its own.
package ws
