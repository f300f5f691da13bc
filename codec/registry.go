package codec

import "sync"

// Registry manages the available frame codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]FrameCodec // keyed by name and four-character tag
}

var defaultRegistry = &Registry{
	codecs: make(map[string]FrameCodec),
}

// Register adds a codec to the default registry under both keys.
func Register(c FrameCodec) {
	defaultRegistry.Register(c)
}

// Get retrieves a codec by name or four-character tag.
func Get(nameOrTag string) (FrameCodec, error) {
	return defaultRegistry.Get(nameOrTag)
}

// List returns all registered codecs.
func List() []FrameCodec {
	return defaultRegistry.List()
}

// Register adds a codec under both its name and stream tag.
func (r *Registry) Register(c FrameCodec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs[c.Name()] = c
	r.codecs[c.FourCC()] = c
}

// Get retrieves a codec by name or stream tag.
func (r *Registry) Get(nameOrTag string) (FrameCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[nameOrTag]
	if !ok {
		return nil, ErrCodecNotFound
	}
	return c, nil
}

// List returns all registered codecs, deduplicated.
func (r *Registry) List() []FrameCodec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[FrameCodec]bool)
	codecs := make([]FrameCodec, 0, len(r.codecs))

	for _, c := range r.codecs {
		if !seen[c] {
			seen[c] = true
			codecs = append(codecs, c)
		}
	}

	return codecs
}
