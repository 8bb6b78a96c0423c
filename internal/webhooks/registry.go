// Package webhooks holds the (platform, event type) handler registry and
// the isolated fan-out used by the ingestion pipeline.
package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

// Handler processes one verified webhook event and returns the labels of
// the side effects it performed.
type Handler interface {
	Handle(ctx context.Context, event domain.WebhookEvent) ([]string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event domain.WebhookEvent) ([]string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event domain.WebhookEvent) ([]string, error) {
	return f(ctx, event)
}

type entry struct {
	name    string
	handler Handler
	builtin bool
}

// Registry maps "platform:eventType" keys to ordered handler lists.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]entry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]entry)}
}

func key(platformID, eventType string) string {
	return platformID + ":" + eventType
}

// Register appends handler under (platformID, eventType).
func (r *Registry) Register(platformID, eventType string, handler Handler) {
	r.RegisterNamed(platformID, eventType, "", handler)
}

// RegisterNamed appends handler with a name used in processing logs.
func (r *Registry) RegisterNamed(platformID, eventType, name string, handler Handler) {
	if handler == nil {
		return
	}
	k := key(platformID, eventType)
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("%s#%d", k, len(r.handlers[k])+1)
	}
	r.handlers[k] = append(r.handlers[k], entry{name: name, handler: handler})
}

// ReplaceDefaults swaps the built-in handlers of platformID for bindings,
// keyed by event type, in one critical section. Handlers added through
// Register or RegisterNamed are kept and still run after the built-in one.
// It returns how many built-in handlers were removed.
func (r *Registry) ReplaceDefaults(platformID string, bindings map[string]Handler) int {
	prefix := platformID + ":"
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, list := range r.handlers {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		kept := list[:0:0]
		for _, e := range list {
			if e.builtin {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(r.handlers, k)
			continue
		}
		r.handlers[k] = kept
	}
	for eventType, handler := range bindings {
		if handler == nil {
			continue
		}
		k := key(platformID, eventType)
		builtin := entry{name: k, handler: handler, builtin: true}
		r.handlers[k] = append([]entry{builtin}, r.handlers[k]...)
	}
	return removed
}

// UnregisterAll removes every handler of platformID and returns how many
// were removed.
func (r *Registry) UnregisterAll(platformID string) int {
	prefix := platformID + ":"
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, list := range r.handlers {
		if strings.HasPrefix(k, prefix) {
			removed += len(list)
			delete(r.handlers, k)
		}
	}
	return removed
}

// Count returns the number of handlers registered for platformID.
func (r *Registry) Count(platformID string) int {
	prefix := platformID + ":"
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k, list := range r.handlers {
		if strings.HasPrefix(k, prefix) {
			n += len(list)
		}
	}
	return n
}

// Named is a handler with its registry name.
type Named struct {
	Name    string
	Handler Handler
}

// Handlers returns a snapshot of the handlers for (platformID, eventType).
func (r *Registry) Handlers(platformID, eventType string) []Named {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.handlers[key(platformID, eventType)]
	out := make([]Named, 0, len(list))
	for _, e := range list {
		out = append(out, Named{Name: e.name, Handler: e.handler})
	}
	return out
}

// Outcome is the merged result of running a handler list.
type Outcome struct {
	Invoked int
	Actions []string
	Errors  []string
	Log     []string
}

// Failed reports whether any handler returned an error or panicked.
func (o Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// Dispatch runs handlers sequentially. A handler error or panic is
// recorded and the remaining handlers still run. Actions are
// de-duplicated keeping first occurrence order.
func Dispatch(ctx context.Context, event domain.WebhookEvent, handlers []Named) Outcome {
	out := Outcome{Actions: []string{}}
	seen := map[string]struct{}{}
	for _, h := range handlers {
		out.Invoked++

		var (
			actions []string
			err     error
			pc      panics.Catcher
		)
		pc.Try(func() {
			actions, err = h.Handler.Handle(ctx, event)
		})
		if recovered := pc.Recovered(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered.Value)
		}

		for _, action := range actions {
			if _, dup := seen[action]; dup {
				continue
			}
			seen[action] = struct{}{}
			out.Actions = append(out.Actions, action)
		}

		if err != nil {
			msg := fmt.Sprintf("handler %s failed: %v", h.Name, err)
			out.Errors = append(out.Errors, msg)
			out.Log = append(out.Log, msg)
			continue
		}
		if len(actions) == 0 {
			out.Log = append(out.Log, fmt.Sprintf("handler %s completed with no actions", h.Name))
			continue
		}
		out.Log = append(out.Log, fmt.Sprintf("handler %s completed: %s", h.Name, strings.Join(actions, ", ")))
	}
	return out
}
