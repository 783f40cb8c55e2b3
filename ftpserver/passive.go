package ftpserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

var errNoPassivePort = errors.New("no free passive port")

// portRange hands out passive listener ports. A zero range means ephemeral
// ports chosen by the kernel.
type portRange struct {
	start, end int
	next       atomic.Uint32
}

func newPortRange(start, end int) *portRange {
	return &portRange{start: start, end: end}
}

// listen opens a TCP listener on ip, trying each port of the range once
// starting after the last port handed out.
func (r *portRange) listen(ip net.IP) (net.Listener, error) {
	if r.start <= 0 || r.end < r.start {
		return net.Listen("tcp", net.JoinHostPort(ip.String(), "0"))
	}

	size := r.end - r.start + 1
	offset := int(r.next.Add(1))
	for i := 0; i < size; i++ {
		port := r.start + (offset+i)%size
		ln, err := net.Listen("tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
	}

	return nil, fmt.Errorf("%w in %d-%d", errNoPassivePort, r.start, r.end)
}

// passive is the single pending data listener of a connection.
type passive struct {
	ln net.Listener
}

func (p *passive) port() int {
	return p.ln.Addr().(*net.TCPAddr).Port
}

// accept waits up to timeout for the client's data connection.
func (p *passive) accept(timeout time.Duration) (net.Conn, error) {
	if tl, ok := p.ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(timeout))
	}

	return p.ln.Accept()
}

func (p *passive) close() {
	_ = p.ln.Close()
}

// pasvReply formats the 227 reply for an IPv4 address and port.
func pasvReply(ip net.IP, port int) (string, error) {
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("%s is not an IPv4 address", ip)
	}

	return fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		v4[0], v4[1], v4[2], v4[3], port/256, port%256), nil
}
