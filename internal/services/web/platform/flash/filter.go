package flash

// filterMode selects how a Filter matches message types.
type filterMode uint8

const (
	filterAny filterMode = iota
	filterOneOf
	filterNoneOf
)

// Filter selects messages by type. The zero value matches everything.
type Filter struct {
	mode  filterMode
	types map[Type]struct{}
}

// Any matches every message.
func Any() Filter {
	return Filter{}
}

// Only matches messages of exactly one type.
func Only(t Type) Filter {
	return OneOf(t)
}

// OneOf matches messages whose type is in types.
func OneOf(types ...Type) Filter {
	return Filter{mode: filterOneOf, types: typeSet(types)}
}

// NoneOf matches messages whose type is not in types.
func NoneOf(types ...Type) Filter {
	return Filter{mode: filterNoneOf, types: typeSet(types)}
}

// IsAny reports whether the filter matches every message.
func (f Filter) IsAny() bool {
	return f.mode == filterAny
}

// Match reports whether a message type passes the filter.
func (f Filter) Match(t Type) bool {
	switch f.mode {
	case filterOneOf:
		_, ok := f.types[t]
		return ok
	case filterNoneOf:
		_, ok := f.types[t]
		return !ok
	default:
		return true
	}
}

func typeSet(types []Type) map[Type]struct{} {
	set := make(map[Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}
