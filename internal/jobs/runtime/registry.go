package runtime

import (
	"fmt"
	"sync"
)

// Handler executes runs of one or more kinds.
type Handler interface {
	Kinds() []string
	Run(ctx *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	kinds := h.Kinds()
	if len(kinds) == 0 {
		return fmt.Errorf("handler Kinds() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		if k == "" {
			return fmt.Errorf("handler declares an empty run kind")
		}
		if _, exists := r.handlers[k]; exists {
			return fmt.Errorf("handler already registered for run_kind=%s", k)
		}
	}
	for _, k := range kinds {
		r.handlers[k] = h
	}
	return nil
}

func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}
