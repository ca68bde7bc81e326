// Package configurator drives single request/response exchanges with the
// Configuration Server of a node connected through a proxy.
package configurator

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/blemesh"
	"github.com/rigado/blemesh/message"
	"github.com/rigado/blemesh/network"
	"github.com/rigado/blemesh/sar"
)

type EventKind int

const (
	// EventMessage carries the status message that answered the request.
	EventMessage EventKind = iota
	EventSucceeded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("event %d", int(k))
}

// Event is an outcome reported by Received.
type Event struct {
	Kind    EventKind
	Message message.Message
	Err     error
}

var ErrClosed = errors.New("configurator closed")

// Configurator runs one Operation against the node at dst. Execute and
// Received must be called from one goroutine; delayed segment
// acknowledgments are written from timer goroutines under the same lock.
type Configurator struct {
	sync.Mutex
	mesh.Logger

	t     mesh.Transport
	dst   mesh.Address
	state *mesh.State
	op    Operation

	layer *network.Layer
	rx    sar.Reassembler

	ttl          uint8
	timeout      time.Duration
	withResponse bool
	errorHandler func(error)

	timers map[*time.Timer]struct{}
	done   bool
	closed bool
}

// New wires a configurator and its private network layer.
func New(t mesh.Transport, dst mesh.Address, state *mesh.State, op Operation, opts ...mesh.Option) (*Configurator, error) {
	if !dst.IsUnicast() {
		return nil, errors.Wrapf(mesh.ErrInvalidAddress, "dst %v", dst)
	}

	c := &Configurator{
		t:       t,
		dst:     dst,
		state:   state,
		op:      op,
		ttl:     mesh.DefaultTTL,
		timeout: mesh.DefaultReassemblyTimeout,
		timers:  make(map[*time.Timer]struct{}),
	}
	c.Logger = mesh.GetLogger().ChildLogger(map[string]interface{}{
		"dst": dst.String(),
		"op":  Name(op),
	})

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	l, err := network.New(state, c.scheduleAck,
		mesh.OptTTL(c.ttl),
		mesh.OptReassemblyTimeout(c.timeout),
		mesh.OptLogger(c.Logger),
		mesh.OptErrorHandler(c.handleError),
	)
	if err != nil {
		return nil, err
	}
	c.layer = l

	return c, nil
}

func (c *Configurator) SetTTL(ttl uint8) error {
	c.ttl = ttl
	return nil
}

func (c *Configurator) SetReassemblyTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

func (c *Configurator) SetLogger(l mesh.Logger) error {
	c.Logger = l
	return nil
}

func (c *Configurator) SetErrorHandler(handler func(error)) error {
	c.errorHandler = handler
	return nil
}

func (c *Configurator) SetWriteWithResponse(b bool) error {
	c.withResponse = b
	return nil
}

func (c *Configurator) Name() string {
	return Name(c.op)
}

// Execute sends the request. Transport errors abort the exchange and are
// returned as is.
func (c *Configurator) Execute() error {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return ErrClosed
	}

	msg, err := request(c.op, c.state)
	if err != nil {
		return err
	}

	pdus, err := c.layer.Assemble(msg, c.dst)
	if err != nil {
		return err
	}

	for _, p := range pdus {
		if err := c.write(p); err != nil {
			return err
		}
	}
	c.Infof("execute: sent %v in %d pdu(s)", msg.Opcode(), len(pdus))
	return nil
}

// write sends one proxy PDU, segmenting it when it exceeds a single write.
func (c *Configurator) write(p []byte) error {
	mtu := c.t.MaximumWriteLength(c.withResponse)
	if len(p) <= mtu {
		return c.t.Write(p, c.withResponse)
	}

	segs, err := sar.Segment(p, mtu)
	if err != nil {
		return err
	}
	for _, s := range segs {
		if err := c.t.Write(s, c.withResponse); err != nil {
			return err
		}
	}
	return nil
}

// Received feeds one notification from the proxy Data Out characteristic.
// Malformed or unrelated data produces no events.
func (c *Configurator) Received(chunk []byte) []Event {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return nil
	}

	pdu, complete, err := c.rx.Feed(chunk)
	if err != nil {
		c.Debugf("received: dropping chunk: %v", err)
		return nil
	}
	if !complete || len(pdu) == 0 {
		return nil
	}

	switch typ := pdu[0] & 0x3F; typ {
	case mesh.ProxyTypeNetwork:
	case mesh.ProxyTypeBeacon:
		c.Debugf("received: ignoring secure network beacon")
		return nil
	default:
		c.Debugf("received: ignoring proxy pdu type 0x%02x", typ)
		return nil
	}

	m, src, err := c.layer.Parse(pdu[1:])
	if err != nil {
		c.Debugf("received: dropping network pdu: %v", err)
		return nil
	}
	if m == nil {
		return nil
	}

	return c.dispatch(src, m)
}

// dispatch is the single driver for all operations. Only a status from dst
// that answers the request completes the exchange.
func (c *Configurator) dispatch(src mesh.Address, m message.Message) []Event {
	if c.done {
		c.Debugf("dispatch: ignoring %v, exchange complete", m.Opcode())
		return nil
	}
	if src != c.dst {
		c.Debugf("dispatch: ignoring %v from %v", m.Opcode(), src)
		return nil
	}
	if !answers(c.op, m) {
		c.Debugf("dispatch: ignoring %v", m.Opcode())
		return nil
	}
	c.done = true

	events := []Event{{Kind: EventMessage, Message: m}}

	if sm, ok := m.(message.StatusMessage); ok && sm.StatusCode() != message.StatusSuccess {
		c.Warnf("dispatch: %v reported %v", m.Opcode(), sm.StatusCode().String())
		if err := c.t.Disconnect(); err != nil {
			c.Errorf("dispatch: disconnect: %v", err)
		}
		return append(events, Event{
			Kind:    EventFailed,
			Message: m,
			Err:     errors.Wrap(sm.StatusCode(), c.Name()),
		})
	}

	c.Infof("dispatch: %v succeeded", c.Name())
	return append(events, Event{Kind: EventSucceeded, Message: m})
}

// scheduleAck runs inside Received, with the lock held. The callback takes
// the lock before touching t, so t is assigned by then.
func (c *Configurator) scheduleAck(ack []byte, delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.Lock()
		defer c.Unlock()

		delete(c.timers, t)
		if c.closed {
			return
		}
		if err := c.write(ack); err != nil {
			c.handleError(errors.Wrap(err, "segment ack"))
		}
	})
	c.timers[t] = struct{}{}
}

func (c *Configurator) pendingAcks() int {
	c.Lock()
	defer c.Unlock()
	return len(c.timers)
}

func (c *Configurator) handleError(err error) {
	if c.errorHandler != nil {
		c.errorHandler(err)
		return
	}
	c.Error(err)
}

// Close stops pending acknowledgments and drops any partial inbound PDU.
func (c *Configurator) Close() {
	c.Lock()
	defer c.Unlock()

	for t := range c.timers {
		t.Stop()
		delete(c.timers, t)
	}
	c.rx.Reset()
	c.closed = true
}
