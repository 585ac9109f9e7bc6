package flash

import (
	"context"
	"sync"
)

// Interpolator embeds values into message text.
type Interpolator interface {
	Interpolate(text string, values map[string]any) string
}

// useValues marks Add calls that reuse the interpolation values as data.
type useValues struct{}

// UseValues passed as Add data copies the interpolation values into Data.
var UseValues any = useValues{}

// Store holds the messages created while handling one request.
type Store struct {
	interpolator Interpolator

	mu       sync.Mutex
	messages []Message
	onAdd    func(Message)
}

// NewStore returns an empty request store. A nil interpolator leaves text
// untouched.
func NewStore(interpolator Interpolator) *Store {
	return &Store{interpolator: interpolator}
}

// Add appends one message.
//
// When values is non-empty the text is interpolated against it; an empty
// map counts as no values. Passing UseValues as data stores values as the
// message data. Use Translate for text that needs the interpolator without
// any values.
func (s *Store) Add(t Type, text string, values map[string]any, data any) {
	if len(values) > 0 && s.interpolator != nil {
		text = s.interpolator.Interpolate(text, values)
	}
	if _, ok := data.(useValues); ok {
		if len(values) == 0 {
			data = nil
		} else {
			data = values
		}
	}
	s.append(Message{Type: t, Value: &text, Data: data})
}

// Translate appends one message whose text always goes through the
// interpolator, even with no values to embed.
func (s *Store) Translate(t Type, text string) {
	if s.interpolator != nil {
		text = s.interpolator.Interpolate(text, nil)
	}
	s.append(Message{Type: t, Value: &text})
}

// AddAll appends one message per text in order.
func (s *Store) AddAll(t Type, texts []string) {
	for _, text := range texts {
		s.Add(t, text, nil, nil)
	}
}

// AddBatch appends a structured-only message with no text value.
func (s *Store) AddBatch(t Type, data any) {
	s.append(Message{Type: t, Data: data})
}

// Error appends an error message.
func (s *Store) Error(text string, values map[string]any) {
	s.Add(TypeError, text, values, nil)
}

// Success appends a success message.
func (s *Store) Success(text string, values map[string]any) {
	s.Add(TypeSuccess, text, values, nil)
}

// Info appends an info message.
func (s *Store) Info(text string, values map[string]any) {
	s.Add(TypeInfo, text, values, nil)
}

// Warning appends a warning message.
func (s *Store) Warning(text string, values map[string]any) {
	s.Add(TypeWarning, text, values, nil)
}

// Current returns the messages added during this request that match the
// filter, in insertion order. It returns nil when nothing matches.
func (s *Store) Current(filter Filter) []Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, msg := range s.messages {
		if filter.Match(msg.Type) {
			out = append(out, msg)
		}
	}
	return out
}

// Take removes the messages matching filter and returns them in order.
func (s *Store) Take(filter Filter) []Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var taken, kept []Message
	for _, msg := range s.messages {
		if filter.Match(msg.Type) {
			taken = append(taken, msg)
			continue
		}
		kept = append(kept, msg)
	}
	s.messages = kept
	return taken
}

// HasMessages reports whether any message was added during this request.
func (s *Store) HasMessages() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) > 0
}

// Messages returns a copy of every message added during this request.
func (s *Store) Messages() []Message {
	return s.Current(Any())
}

// OnAdd registers fn to run after each added message.
func (s *Store) OnAdd(fn func(Message)) {
	s.mu.Lock()
	s.onAdd = fn
	s.mu.Unlock()
}

func (s *Store) append(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	hook := s.onAdd
	s.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
}

// drain removes and returns every in-request message.
func (s *Store) drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}

type storeContextKey struct{}

// WithStore returns ctx carrying the request store.
func WithStore(ctx context.Context, store *Store) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeContextKey{}, store)
}

// FromContext returns the request store, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	if ctx == nil {
		return nil, false
	}
	store, ok := ctx.Value(storeContextKey{}).(*Store)
	return store, ok && store != nil
}
