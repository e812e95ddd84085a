package transport

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is the port receivers listen on unless configured otherwise.
const DefaultPort uint16 = 6772

// Endpoint is a fully specified IPv4 destination.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// String returns the endpoint as "a.b.c.d:port".
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host(), strconv.Itoa(int(e.Port)))
}

// Host returns the dotted-quad address.
func (e Endpoint) Host() string {
	return fmt.Sprintf("%d.%d.%d.%d", e.IP[0], e.IP[1], e.IP[2], e.IP[3])
}

// UDPAddr returns the endpoint as a net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(e.IP[0], e.IP[1], e.IP[2], e.IP[3]), Port: int(e.Port)}
}

// OptionalEndpoint is the operator-entered destination. Any nil field leaves
// the endpoint incomplete, and an incomplete endpoint cannot be sent to.
type OptionalEndpoint struct {
	A    *uint8  `yaml:"a,omitempty" json:"a,omitempty"`
	B    *uint8  `yaml:"b,omitempty" json:"b,omitempty"`
	C    *uint8  `yaml:"c,omitempty" json:"c,omitempty"`
	D    *uint8  `yaml:"d,omitempty" json:"d,omitempty"`
	Port *uint16 `yaml:"port,omitempty" json:"port,omitempty"`
}

// NewOptionalEndpoint returns a fully specified OptionalEndpoint.
func NewOptionalEndpoint(a, b, c, d uint8, port uint16) OptionalEndpoint {
	return OptionalEndpoint{A: &a, B: &b, C: &c, D: &d, Port: &port}
}

// Complete reports whether all five fields are set.
func (o OptionalEndpoint) Complete() bool {
	return o.A != nil && o.B != nil && o.C != nil && o.D != nil && o.Port != nil
}

// Endpoint returns the resolved endpoint, or false if any field is unset.
func (o OptionalEndpoint) Endpoint() (Endpoint, bool) {
	if !o.Complete() {
		return Endpoint{}, false
	}
	return Endpoint{IP: [4]byte{*o.A, *o.B, *o.C, *o.D}, Port: *o.Port}, true
}

// Equal reports whether both endpoints have the same fields set to the same
// values.
func (o OptionalEndpoint) Equal(other OptionalEndpoint) bool {
	return eqPtr(o.A, other.A) && eqPtr(o.B, other.B) && eqPtr(o.C, other.C) &&
		eqPtr(o.D, other.D) && eqPtr(o.Port, other.Port)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
