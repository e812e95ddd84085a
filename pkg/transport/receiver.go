package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/teslashibe/go-facecast/pkg/record"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// RecordHandler receives the decoded records of one datagram. err is set
// when the datagram was malformed; records then holds whatever decoded
// before the fault.
type RecordHandler func(from net.Addr, records []record.Record, err error)

// Receiver listens for telemetry datagrams. It is the debugging counterpart
// of Sender.
type Receiver struct {
	conn net.PacketConn
}

// Listen opens a UDP socket on addr, e.g. ":6772".
func Listen(addr string) (*Receiver, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Receiver{conn: conn}, nil
}

// Addr returns the bound address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Endpoint returns the bound address as an Endpoint on the loopback
// interface when bound to all interfaces.
func (r *Receiver) Endpoint() Endpoint {
	ep := Endpoint{IP: [4]byte{127, 0, 0, 1}}
	if udp, ok := r.conn.LocalAddr().(*net.UDPAddr); ok {
		ep.Port = uint16(udp.Port)
		if ip4 := udp.IP.To4(); ip4 != nil && !ip4.IsUnspecified() {
			copy(ep.IP[:], ip4)
		}
	}
	return ep
}

// Serve reads datagrams until ctx is done or the receiver is closed.
func (r *Receiver) Serve(ctx context.Context, handler RecordHandler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		records, derr := record.DecodeAll(buf[:n])
		handler(from, records, derr)
	}
}

// Close stops the receiver.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
