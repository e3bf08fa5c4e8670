// Package registry implements the chat registry (C3): an in-memory map of
// platform chats to bindings, rebuilt from storage at startup and written
// through on every change.
package registry

import (
	"context"
	"sync"

	"github.com/local/steward/internal/storage"
)

// Binding is a chat's registration: what project/purpose it serves and how
// noisy notifications to it should be.
type Binding struct {
	Platform   string
	ChatID     string
	Type       string
	Value      string
	NotifLevel string
}

type key struct {
	platform string
	chatID   string
}

// Registry is the O(1) lookup map, write-through to storage.
type Registry struct {
	store *storage.Store

	mu       sync.Mutex
	bindings map[key]Binding
}

// New constructs a Registry and rebuilds its in-memory map from storage.
func New(ctx context.Context, store *storage.Store) (*Registry, error) {
	r := &Registry{store: store, bindings: make(map[key]Binding)}
	existing, err := store.ChatBindings(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range existing {
		r.bindings[key{b.Platform, b.ChatID}] = Binding{
			Platform: b.Platform, ChatID: b.ChatID, Type: b.Type, Value: b.Value, NotifLevel: b.NotifLevel,
		}
	}
	return r, nil
}

// Bind registers or updates a chat binding, writing through to storage
// before updating the in-memory map.
func (r *Registry) Bind(ctx context.Context, platform, chatID, typ, value, notifLevel string) error {
	if err := r.store.UpsertChatBinding(ctx, storage.ChatBinding{
		Platform: platform, ChatID: chatID, Type: typ, Value: value, NotifLevel: notifLevel,
	}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[key{platform, chatID}] = Binding{
		Platform: platform, ChatID: chatID, Type: typ, Value: value, NotifLevel: notifLevel,
	}
	return nil
}

// Lookup returns a chat's binding, if any. O(1).
func (r *Registry) Lookup(platform, chatID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[key{platform, chatID}]
	return b, ok
}

// List returns every known binding.
func (r *Registry) List() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	return out
}

// AutoBindIfProjectMatch implements the "first message from an unknown
// group chat with a title matching a known project" auto-bind rule. It
// returns true if a new repo binding was created.
func (r *Registry) AutoBindIfProjectMatch(ctx context.Context, platform, chatID, chatTitle string, knownProjects []string) (bool, error) {
	if _, ok := r.Lookup(platform, chatID); ok {
		return false, nil
	}
	for _, project := range knownProjects {
		if project != "" && project == chatTitle {
			return true, r.Bind(ctx, platform, chatID, "repo", project, "all")
		}
	}
	return false, nil
}
