package assets

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HandlePrefix marks registry-issued display handles.
const HandlePrefix = "asset://"

type resource struct {
	data []byte
	mime string
}

// Registry maps opaque display handles to blob bytes. All methods are
// safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	resources map[string]resource
	released  int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]resource)}
}

// Create stores the blob and issues a fresh handle for it.
func (r *Registry) Create(data []byte, mime string) string {
	handle := HandlePrefix + uuid.NewString()
	r.mu.Lock()
	r.resources[handle] = resource{data: data, mime: mime}
	r.mu.Unlock()
	return handle
}

// Get returns the blob bytes and mime type behind a live handle.
func (r *Registry) Get(handle string) ([]byte, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[handle]
	if !ok {
		return nil, "", false
	}
	return res.data, res.mime, true
}

// Release frees the blob behind the handle. Releasing an unknown,
// already-released, or empty handle is a no-op, never an error.
func (r *Registry) Release(handle string) {
	if handle == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[handle]; !ok {
		return
	}
	delete(r.resources, handle)
	r.released++
}

// Len reports how many handles are currently live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}

// Releases reports how many handles have been freed over the registry's
// lifetime. Tests use this to assert exactly-once release.
func (r *Registry) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// IsHandle reports whether a string looks like a registry handle.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, HandlePrefix)
}

// ID strips the handle prefix, yielding the path-safe identifier used
// by the HTTP asset endpoint.
func ID(handle string) string {
	return strings.TrimPrefix(handle, HandlePrefix)
}

// FromID rebuilds a handle from its path identifier.
func FromID(id string) string {
	return HandlePrefix + id
}
