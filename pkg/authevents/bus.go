package authevents

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// DefaultHistorySize bounds the diagnostic history ring.
const DefaultHistorySize = 50

// Listener receives every event it was registered for.
type Listener func(Event)

type registration struct {
	id uint64
	fn Listener
}

// Bus is a publish/subscribe registry for authentication lifecycle events.
//
// Listeners are called synchronously from Emit, general listeners first and
// then typed listeners, each group in registration order. A panicking
// listener is recovered and logged; the remaining listeners still run.
// Listeners may subscribe, unsubscribe or emit from inside a callback.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	general map[EventType][]registration
	typed   map[EventType][]registration

	history     []Event
	historySize int

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithHistorySize overrides the history bound. Values below 1 are ignored.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New returns an isolated bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		general:     make(map[EventType][]registration),
		typed:       make(map[EventType][]registration),
		historySize: DefaultHistorySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = slogx.OrDefault(b.logger).With("component", "authevents")
	b.history = make([]Event, 0, b.historySize)
	return b
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the process-wide bus. Every call returns the same
// instance. Prefer passing a *Bus explicitly; Default exists for glue code
// that has no other way to reach it.
func Default() *Bus {
	defaultOnce.Do(func() { defaultBus = New() })
	return defaultBus
}

// Subscribe registers fn for every event type. The returned func removes it
// from all of them.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.allocID()
	for _, t := range AllTypes {
		b.general[t] = append(b.general[t], registration{id: id, fn: fn})
	}

	return b.remover(false, id, AllTypes...)
}

// On registers fn for a single event type.
func (b *Bus) On(t EventType, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.allocID()
	b.general[t] = append(b.general[t], registration{id: id, fn: fn})

	return b.remover(false, id, t)
}

func (b *Bus) onTyped(t EventType, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.allocID()
	b.typed[t] = append(b.typed[t], registration{id: id, fn: fn})

	return b.remover(true, id, t)
}

// typed adapts a payload callback into a Listener for the typed registry.
func typed[P Payload](fn func(P)) Listener {
	return func(e Event) {
		if p, ok := e.Data.(P); ok {
			fn(p)
		}
	}
}

func (b *Bus) OnLogin(fn func(LoginPayload)) func() {
	return b.onTyped(EventLogin, typed(fn))
}

func (b *Bus) OnLogout(fn func(LogoutPayload)) func() {
	return b.onTyped(EventLogout, typed(fn))
}

func (b *Bus) OnTokenExpired(fn func(TokenExpiredPayload)) func() {
	return b.onTyped(EventTokenExpired, typed(fn))
}

func (b *Bus) OnTokenRefreshed(fn func(TokenRefreshedPayload)) func() {
	return b.onTyped(EventTokenRefreshed, typed(fn))
}

func (b *Bus) OnAuthError(fn func(AuthErrorPayload)) func() {
	return b.onTyped(EventAuthError, typed(fn))
}

func (b *Bus) OnSessionExpired(fn func(SessionExpiredPayload)) func() {
	return b.onTyped(EventSessionExpired, typed(fn))
}

func (b *Bus) OnPermissionsChanged(fn func(PermissionsChangedPayload)) func() {
	return b.onTyped(EventPermissionsChanged, typed(fn))
}

func (b *Bus) OnUserUpdated(fn func(UserUpdatedPayload)) func() {
	return b.onTyped(EventUserUpdated, typed(fn))
}

// Emit records p and dispatches it. A zero payload timestamp is set to the
// current time; a caller-provided one is kept as is.
func (b *Bus) Emit(p Payload) Event {
	now := b.now()
	p = p.clone()
	if p.At().IsZero() {
		p = p.withTimestamp(now)
	}

	e := Event{
		ID:        idx.NewAt(now),
		Type:      p.Type(),
		Data:      p,
		Timestamp: now,
	}

	b.mu.Lock()
	b.record(e.clone())
	general := slices.Clone(b.general[e.Type])
	typedRegs := slices.Clone(b.typed[e.Type])
	b.mu.Unlock()

	for _, r := range general {
		b.dispatch(e, r, "general")
	}
	for _, r := range typedRegs {
		b.dispatch(e, r, "typed")
	}

	return e
}

// History returns a deep copy of the recorded events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.history))
	for i, e := range b.history {
		out[i] = e.clone()
	}
	return out
}

// ClearListeners drops every registration. History is kept.
func (b *Bus) ClearListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.general = make(map[EventType][]registration)
	b.typed = make(map[EventType][]registration)
}

// ListenerCount reports how many listeners (general plus typed) would
// receive an event of type t.
func (b *Bus) ListenerCount(t EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.general[t]) + len(b.typed[t])
}

func (b *Bus) dispatch(e Event, r registration, kind string) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event listener panicked",
				"event", e.Type,
				"listener_kind", kind,
				"err", fmt.Errorf("%v", rec),
			)
		}
	}()
	r.fn(e)
}

// record appends e, evicting the oldest entry once the bound is exceeded.
// Caller holds b.mu.
func (b *Bus) record(e Event) {
	if len(b.history) < b.historySize {
		b.history = append(b.history, e)
		return
	}
	copy(b.history, b.history[1:])
	b.history[len(b.history)-1] = e
}

// Caller holds b.mu.
func (b *Bus) allocID() uint64 {
	b.nextID++
	return b.nextID
}

// remover builds an idempotent unsubscribe func. Slices are rebuilt rather
// than edited in place so snapshots taken by a concurrent Emit stay intact.
func (b *Bus) remover(typedReg bool, id uint64, types ...EventType) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			// ClearListeners may have swapped the maps out, look them up again.
			reg := b.general
			if typedReg {
				reg = b.typed
			}
			for _, t := range types {
				reg[t] = slices.DeleteFunc(slices.Clone(reg[t]), func(r registration) bool {
					return r.id == id
				})
			}
		})
	}
}
