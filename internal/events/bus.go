// Package events is the in-process event bus that connects watchers,
// task runners, the live-reload hub and the dev server.
//
// Events are plain values. Subscriptions are typed with generics and are
// delivered over buffered channels. Nothing here is durable.
package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// Bus routes published values to the subscribers registered for their type.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

type subscription struct {
	deliver func(ctx context.Context, evt any, wait bool) (bool, error)
	close   func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]*subscription)}
}

// Subscribe registers a channel receiving events of type T.
//
// An interface T receives every published value implementing it. The
// returned function unsubscribes and closes the channel; it is safe to call
// more than once.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	key := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { close(ch) }) }

	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscription{
		deliver: func(ctx context.Context, evt any, wait bool) (bool, error) {
			v, ok := evt.(T)
			if !ok {
				return false, ferrors.InternalError("event type mismatch").
					WithContext("expected", key.String()).
					WithContext("actual", reflect.TypeOf(evt).String()).
					Build()
			}
			if !wait {
				select {
				case ch <- v:
					return true, nil
				default:
					return false, nil
				}
			}
			select {
			case ch <- v:
				return true, nil
			case <-ctx.Done():
				return false, ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
					WithContext("event_type", key.String()).
					Build()
			}
		},
		close: closeCh,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*subscription)
	}
	b.subs[key][id] = sub

	var unsubOnce sync.Once
	return ch, func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			if byID, ok := b.subs[key]; ok {
				delete(byID, id)
				if len(byID) == 0 {
					delete(b.subs, key)
				}
			}
			b.mu.Unlock()
			closeCh()
		})
	}
}

// SubscriberCount returns the number of live subscriptions for T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Publish delivers evt to every matching subscriber, blocking until each has
// accepted it or ctx is done.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	targets, err := b.targets(ctx, evt)
	if err != nil {
		return err
	}
	for _, s := range targets {
		if _, err := s.deliver(ctx, evt, true); err != nil {
			return err
		}
	}
	return nil
}

// TryPublish delivers evt only to subscribers with free buffer space and
// returns how many subscribers missed it. Used for telemetry events where a
// slow consumer must not stall a build.
func (b *Bus) TryPublish(evt any) (dropped int, err error) {
	targets, err := b.targets(context.Background(), evt)
	if err != nil {
		return 0, err
	}
	for _, s := range targets {
		ok, err := s.deliver(context.Background(), evt, false)
		if err != nil {
			return dropped, err
		}
		if !ok {
			dropped++
		}
	}
	return dropped, nil
}

func (b *Bus) targets(ctx context.Context, evt any) ([]*subscription, error) {
	if b == nil {
		return nil, nil
	}
	if evt == nil {
		return nil, ferrors.ValidationError("event cannot be nil").Build()
	}
	if ctx == nil {
		return nil, ferrors.ValidationError("context cannot be nil").Build()
	}
	if b.closed.Load() {
		return nil, ferrors.RuntimeError("event bus is closed").Build()
	}

	evtType := reflect.TypeOf(evt)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*subscription
	for key, byID := range b.subs {
		if key != evtType && (key.Kind() != reflect.Interface || !evtType.Implements(key)) {
			continue
		}
		for _, s := range byID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Close closes the bus and every subscription channel.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		var all []*subscription
		for _, byID := range b.subs {
			for _, s := range byID {
				all = append(all, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscription)
		b.mu.Unlock()
		for _, s := range all {
			s.close()
		}
	})
}
