package factory

import (
	"sync"

	"github.com/forgo/modelfactory/pkg/orm"
)

// History records every model created through a Factory, per model type, in creation order.
type History struct {
	mu     sync.RWMutex
	models map[string]orm.Collection
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{models: make(map[string]orm.Collection)}
}

func (h *History) track(model string, created orm.Collection) {
	if len(created) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.models[model] = append(h.models[model], created...)
}

// All returns the created models of a type
func (h *History) All(model string) orm.Collection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append(orm.Collection(nil), h.models[model]...)
}

// Last returns the most recently created model of a type, or nil
func (h *History) Last(model string) *orm.Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ms := h.models[model]
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

// Reset forgets everything
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.models = make(map[string]orm.Collection)
}
