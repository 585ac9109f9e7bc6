package flash

import (
	"context"
	"fmt"
	"strings"
)

// Session is the key/value slot storage for one browser session.
type Session interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Bridge moves messages between a request Store and a session slot.
type Bridge struct {
	store   *Store
	session Session
	key     string
}

// NewBridge binds a request store to a session slot. An empty key uses
// DefaultKey.
func NewBridge(store *Store, session Session, key string) *Bridge {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultKey
	}
	if store == nil {
		store = NewStore(nil)
	}
	return &Bridge{store: store, session: session, key: key}
}

// Store returns the request store bound to the bridge.
func (b *Bridge) Store() *Store {
	return b.store
}

// Key returns the session slot key.
func (b *Bridge) Key() string {
	return b.key
}

// GetOptions controls how persisted messages are read.
type GetOptions struct {
	Filter Filter
	// Default is returned when the slot is empty or nothing matches.
	Default []Message
	// Delete removes the returned messages from the slot.
	Delete bool
	// IncludeStructured also returns messages without a text value.
	IncludeStructured bool
}

// Get returns persisted messages matching opts.Filter in stored order.
//
// With opts.Delete the matching messages are removed from the slot: the
// remainder is written back, or the slot is dropped when nothing remains.
// An Any filter always drops the slot, structured entries included.
func (b *Bridge) Get(ctx context.Context, opts GetOptions) ([]Message, error) {
	persisted, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(persisted) == 0 {
		return opts.Default, nil
	}

	var matched, remainder []Message
	for _, msg := range persisted {
		if opts.Filter.Match(msg.Type) && (opts.IncludeStructured || msg.HasValue()) {
			matched = append(matched, msg)
			continue
		}
		remainder = append(remainder, msg)
	}
	if len(matched) == 0 && !(opts.Delete && opts.Filter.IsAny()) {
		return opts.Default, nil
	}

	if opts.Delete {
		if opts.Filter.IsAny() || len(remainder) == 0 {
			if err := b.remove(ctx); err != nil {
				return nil, err
			}
		} else if err := b.save(ctx, remainder); err != nil {
			return nil, err
		}
	}
	if len(matched) == 0 {
		return opts.Default, nil
	}
	return matched, nil
}

// GetOnce returns matching persisted messages and removes them from the slot.
func (b *Bridge) GetOnce(ctx context.Context, filter Filter, def []Message, includeStructured bool) ([]Message, error) {
	return b.Get(ctx, GetOptions{
		Filter:            filter,
		Default:           def,
		Delete:            true,
		IncludeStructured: includeStructured,
	})
}

// Delete removes persisted messages matching filter. Any drops the slot.
func (b *Bridge) Delete(ctx context.Context, filter Filter) error {
	if filter.IsAny() {
		return b.remove(ctx)
	}
	_, err := b.Get(ctx, GetOptions{Filter: filter, Delete: true, IncludeStructured: true})
	return err
}

// Persist writes the request messages into the session slot.
//
// With keepAlive, messages still pending from earlier requests are kept
// ahead of the new ones; otherwise they are replaced. Nothing is written
// when the result is empty. Persisted messages leave the request store.
func (b *Bridge) Persist(ctx context.Context, keepAlive bool) error {
	current := b.store.drain()
	merged := current
	if keepAlive {
		persisted, err := b.load(ctx)
		if err != nil {
			b.restore(current)
			return err
		}
		merged = append(persisted, current...)
	}
	if len(merged) == 0 {
		return nil
	}
	if err := b.save(ctx, merged); err != nil {
		b.restore(current)
		return err
	}
	return nil
}

func (b *Bridge) restore(messages []Message) {
	if len(messages) == 0 {
		return
	}
	b.store.mu.Lock()
	b.store.messages = append(messages, b.store.messages...)
	b.store.mu.Unlock()
}

func (b *Bridge) load(ctx context.Context) ([]Message, error) {
	if b.session == nil {
		return nil, fmt.Errorf("flash session is not configured")
	}
	raw, ok, err := b.session.Get(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("load flash messages: %w", err)
	}
	if !ok {
		return nil, nil
	}
	messages, err := decodeMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("decode flash messages: %w", err)
	}
	return messages, nil
}

func (b *Bridge) save(ctx context.Context, messages []Message) error {
	if b.session == nil {
		return fmt.Errorf("flash session is not configured")
	}
	payload, err := encodeMessages(messages)
	if err != nil {
		return fmt.Errorf("encode flash messages: %w", err)
	}
	if err := b.session.Set(ctx, b.key, payload); err != nil {
		return fmt.Errorf("save flash messages: %w", err)
	}
	return nil
}

func (b *Bridge) remove(ctx context.Context) error {
	if b.session == nil {
		return fmt.Errorf("flash session is not configured")
	}
	if err := b.session.Delete(ctx, b.key); err != nil {
		return fmt.Errorf("delete flash messages: %w", err)
	}
	return nil
}

type bridgeContextKey struct{}

// WithBridge returns ctx carrying the request bridge and its store.
func WithBridge(ctx context.Context, bridge *Bridge) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, bridgeContextKey{}, bridge)
	if bridge != nil {
		ctx = WithStore(ctx, bridge.store)
	}
	return ctx
}

// BridgeFromContext returns the request bridge, if any.
func BridgeFromContext(ctx context.Context) (*Bridge, bool) {
	if ctx == nil {
		return nil, false
	}
	bridge, ok := ctx.Value(bridgeContextKey{}).(*Bridge)
	return bridge, ok && bridge != nil
}
