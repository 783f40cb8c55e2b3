package tcpserver

import "net"

// Conn is implemented by each accepted connection. The server runs Handle in
// its own goroutine and removes the connection from its table once Handle
// returns.
type Conn interface {
	// ID returns the identifier assigned by the server at accept time.
	ID() uint32

	// Handle runs the connection's command loop until the client disconnects,
	// the connection decides to exit, or Close is called.
	Handle()

	// Close closes the connection and releases its resources. It must be safe
	// to call more than once and concurrently with Handle.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}

// NewConnFunc builds the Conn for an accepted socket. It receives the id
// assigned by the server and the raw net.Conn.
type NewConnFunc func(id uint32, conn net.Conn) Conn
