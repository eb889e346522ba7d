package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/playback"
)

// fakeConn is a scripted conversation connection.
type fakeConn struct {
	inbound chan []Event
	remote  chan error

	mu     sync.Mutex
	sent   []audio.Frame
	closed bool

	closes   atomic.Int32
	sendHook func(ctx context.Context) error
	closedCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []Event, 16),
		remote:   make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, frame audio.Frame) error {
	if c.sendHook != nil {
		if err := c.sendHook(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("send on closed connection")
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, errors.New("use of closed connection")
	case err := <-c.remote:
		return nil, err
	case events := <-c.inbound:
		return events, nil
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

func (c *fakeConn) push(events ...Event) {
	c.inbound <- events
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeDialer hands out one fakeConn per dial.
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	setups []Setup
	err    error
	block  bool
	dialed chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan struct{}, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, setup Setup) (Conn, error) {
	d.mu.Lock()
	d.setups = append(d.setups, setup)
	block, err := d.block, d.err
	d.mu.Unlock()

	d.dialed <- struct{}{}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// fakeSource lets tests drive the device callback.
type fakeSource struct {
	mu      sync.Mutex
	onBlock audio.BlockFunc
	onStart func()
	stops   atomic.Int32
}

func (s *fakeSource) Start(_ context.Context, onBlock audio.BlockFunc) error {
	s.mu.Lock()
	s.onBlock = onBlock
	s.mu.Unlock()
	if s.onStart != nil {
		s.onStart()
	}
	return nil
}

func (s *fakeSource) Stop() error {
	s.stops.Add(1)
	return nil
}

func (s *fakeSource) Device() audio.Device {
	return audio.Device{ID: "fake-mic"}
}

func (s *fakeSource) emit(samples []float32) {
	s.mu.Lock()
	fn := s.onBlock
	s.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

type fakeVoice struct {
	stops *atomic.Int32
	once  sync.Once
}

func (v *fakeVoice) Stop() {
	v.once.Do(func() { v.stops.Add(1) })
}

// fakeOutput is a manual-clock output that records scheduled buffers.
type fakeOutput struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []time.Duration
	closes    atomic.Int32
	stops     atomic.Int32
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Schedule(_ []float32, at time.Duration, _ func()) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, at)
	return &fakeVoice{stops: &o.stops}, nil
}

func (o *fakeOutput) Close() error {
	o.closes.Add(1)
	return nil
}

func (o *fakeOutput) starts() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.scheduled...)
}

// fakeDevices opens a fresh source and output per run and remembers them.
type fakeDevices struct {
	mu        sync.Mutex
	sources   []*fakeSource
	outputs   []*fakeOutput
	outputErr error
	// runs inside the source's Start
	onSourceStart func()
}

func (d *fakeDevices) OpenInput(context.Context) (audio.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	source := &fakeSource{onStart: d.onSourceStart}
	d.sources = append(d.sources, source)
	return source, nil
}

func (d *fakeDevices) OpenOutput(context.Context) (playback.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outputErr != nil {
		return nil, d.outputErr
	}
	output := &fakeOutput{}
	d.outputs = append(d.outputs, output)
	return output, nil
}

func (d *fakeDevices) source(i int) *fakeSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sources[i]
}

func (d *fakeDevices) output(i int) *fakeOutput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[i]
}
