package messenger

import (
	"context"
	"errors"
	"sync"

	"voiceai/log"
)

// Handler consumes messages sent by the panel.
type Handler interface {
	Handle(m Message)
}

type HandlerFunc func(m Message)

func (f HandlerFunc) Handle(m Message) { f(m) }

// cmdDetached is queued behind a closing panel's last commands so the detach
// hook runs after them. It is not in the wire vocabulary.
const cmdDetached Command = "panelDetached"

// Bridge connects the controller to at most one presentation surface.
// Inbound messages share one queue; each attached panel gets its own
// outbound queue, closed when the panel detaches.
type Bridge struct {
	inbound *Queue

	mu       sync.Mutex
	panel    *Panel
	nextID   uint64
	onDetach func()
}

func NewBridge() *Bridge {
	return &Bridge{inbound: NewQueue()}
}

// OnDetach registers fn to run every time the attached panel goes away.
// It runs on the Serve goroutine, after the commands the panel sent.
func (b *Bridge) OnDetach(fn func()) {
	b.mu.Lock()
	b.onDetach = fn
	b.mu.Unlock()
}

// Attach claims the panel slot.
func (b *Bridge) Attach() (*Panel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.panel != nil {
		return nil, ErrPanelOpen
	}
	b.nextID++
	p := &Panel{id: b.nextID, bridge: b, out: NewQueue()}
	b.panel = p
	log.Infof("panel %d attached", p.id)
	return p, nil
}

func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.panel != nil
}

// Post delivers m to the attached panel. With no panel the message is
// dropped and Post reports false.
func (b *Bridge) Post(m Message) bool {
	b.mu.Lock()
	p := b.panel
	b.mu.Unlock()
	if p == nil {
		log.Infof("no panel, dropped %s", m)
		return false
	}
	return p.out.Post(m)
}

// Serve feeds inbound messages to h until ctx is done or the bridge closes.
func (b *Bridge) Serve(ctx context.Context, h Handler) error {
	for {
		m, err := b.inbound.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if m.Command == cmdDetached {
			b.mu.Lock()
			fn := b.onDetach
			b.mu.Unlock()
			if fn != nil {
				fn()
			}
			continue
		}
		h.Handle(m)
	}
}

// Close detaches any panel and stops Serve. A dispose hook still queued is
// dropped; callers shut the controller down themselves.
func (b *Bridge) Close() {
	b.mu.Lock()
	p := b.panel
	b.mu.Unlock()
	if p != nil {
		p.Close()
	}
	b.inbound.Close()
}

func (b *Bridge) detach(p *Panel, notify bool) {
	b.mu.Lock()
	if b.panel != p {
		b.mu.Unlock()
		return
	}
	b.panel = nil
	b.mu.Unlock()

	p.out.Close()
	if !notify {
		log.Infof("panel %d released", p.id)
		return
	}
	log.Infof("panel %d detached", p.id)
	b.inbound.Post(Simple(cmdDetached))
}

// Panel is the sandboxed side of the bridge.
type Panel struct {
	id     uint64
	bridge *Bridge
	out    *Queue
	once   sync.Once
}

func (p *Panel) ID() uint64 { return p.id }

// Send forwards an inbound command. Outbound tags are refused.
func (p *Panel) Send(m Message) bool {
	if !m.Command.Inbound() {
		log.Warnf("panel %d sent non-inbound command %q", p.id, m.Command)
		return false
	}
	return p.bridge.inbound.Post(m)
}

// Receive returns the next controller message for this panel.
func (p *Panel) Receive(ctx context.Context) (Message, error) {
	return p.out.Receive(ctx)
}

func (p *Panel) Close() {
	p.once.Do(func() { p.bridge.detach(p, true) })
}

// Release frees the slot of a panel that never connected. The detach hook
// does not run.
func (p *Panel) Release() {
	p.once.Do(func() { p.bridge.detach(p, false) })
}
