package socket

import (
	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/variant"
)

// ErrInterrupted is returned by Emit when the output is interrupted while a
// delivery is pending.
var ErrInterrupted = errors.New("emit interrupted")

// Direction of a socket.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionProxy
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Guard is consulted before a connection involving the socket changes. It
// returns an error while the owner does not allow rewiring.
type Guard func() error

// Socket is the behavior shared by every endpoint.
type Socket interface {
	Name() string
	Owner() string
	Direction() Direction
	IsConnected() bool
	checkGuard() error
}

// Input is anything an Output can deliver to. The interface is sealed: only
// InputSocket and ProxySocket implement it.
type Input interface {
	Socket

	// TryToReceive offers a value. It reports whether the value was fully
	// accepted; a false result means the caller must offer it again later.
	TryToReceive(v variant.Variant) bool

	// Source returns the directly connected producer, if any.
	Source() Output

	// RootOutput walks the proxy chain to the real producer.
	RootOutput() *OutputSocket

	setSource(src Output) error
	clearSource(src Output) error
	resetRound()
}

// Output is anything that can feed Inputs. The interface is sealed: only
// OutputSocket and ProxySocket implement it.
type Output interface {
	Socket

	Connect(in Input) error
	Disconnect(in Input) error
	Targets() []Input

	inputReady()
	reaches(seen map[Socket]bool) bool
}

func guarded(sockets ...Socket) error {
	for _, s := range sockets {
		if err := s.checkGuard(); err != nil {
			return err
		}
	}
	return nil
}

func without(list []Input, in Input) ([]Input, bool) {
	for i, t := range list {
		if t == in {
			out := make([]Input, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}

func with(list []Input, in Input) []Input {
	out := make([]Input, 0, len(list)+1)
	out = append(out, list...)
	return append(out, in)
}

func qualified(s Socket) string {
	if s.Owner() == "" {
		return s.Name()
	}
	return s.Owner() + "." + s.Name()
}
