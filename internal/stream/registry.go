package stream

// StreamKind distinguishes subscription stream families.
type StreamKind uint8

const (
	KindTick StreamKind = iota + 1
	KindContract
)

func (k StreamKind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindContract:
		return "contract"
	default:
		return "unknown"
	}
}

type subKey struct {
	kind StreamKind
	key  string
}

type subEntry struct {
	// payload is the original subscribe frame, resent verbatim on replay.
	payload []byte
	// upstreamID is the provider's subscription id, learned from the first
	// stream message. Empty until then, and again right after a replay.
	upstreamID string
}

// Registry tracks live stream subscriptions so they can be replayed after a
// reconnect. Only stateless-parameter streams belong here (ticks, contract
// status); proposal streams are not replayed. Not safe for concurrent use:
// the Session serializes access under its own mutex.
type Registry struct {
	entries map[subKey]*subEntry
	order   []subKey
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[subKey]*subEntry)}
}

// Record registers a subscription and reports whether it was newly added.
// Recording an existing key is a no-op returning false, which is what makes
// duplicate subscribe calls idempotent.
func (r *Registry) Record(kind StreamKind, key string, payload []byte) bool {
	k := subKey{kind: kind, key: key}
	if _, ok := r.entries[k]; ok {
		return false
	}
	r.entries[k] = &subEntry{payload: payload}
	r.order = append(r.order, k)
	return true
}

// Has reports whether a subscription is recorded.
func (r *Registry) Has(kind StreamKind, key string) bool {
	_, ok := r.entries[subKey{kind: kind, key: key}]
	return ok
}

// Forget removes a subscription and returns the provider subscription id,
// if one was learned.
func (r *Registry) Forget(kind StreamKind, key string) (string, bool) {
	k := subKey{kind: kind, key: key}
	e, ok := r.entries[k]
	if !ok {
		return "", false
	}
	delete(r.entries, k)
	for i, o := range r.order {
		if o == k {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return e.upstreamID, true
}

// SetUpstreamID attaches the provider subscription id to an entry.
func (r *Registry) SetUpstreamID(kind StreamKind, key, id string) {
	if e, ok := r.entries[subKey{kind: kind, key: key}]; ok {
		e.upstreamID = id
	}
}

// Len reports the number of recorded subscriptions.
func (r *Registry) Len() int {
	return len(r.entries)
}

// ReplayAll resends the original subscribe frame for every recorded entry,
// each exactly once, and clears stale upstream ids (the provider assigns
// fresh ones after resubscribe). Stops at the first send failure.
func (r *Registry) ReplayAll(send func(payload []byte) error) error {
	for _, k := range r.order {
		e := r.entries[k]
		e.upstreamID = ""
		if err := send(e.payload); err != nil {
			return err
		}
	}
	return nil
}
