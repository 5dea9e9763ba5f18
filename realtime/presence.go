package realtime

import (
	"sort"
	"sync"
)

// Registry tracks which user IDs currently have a live connection. At most one
// handle per user: a second join for the same user overwrites the first (last
// writer wins) and the evicted connection stays open but no longer receives
// pushes. Nothing here survives a process restart.
//
// Each connection reads on its own goroutine, so unlike a single-threaded
// event loop the maps need a mutex.
type Registry struct {
	mu       sync.Mutex
	byUser   map[string]*Client
	byClient map[*Client]string
}

// NewRegistry returns an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]*Client),
		byClient: make(map[*Client]string),
	}
}

// Set records client as userID's active connection, replacing any prior entry
// for that user
func (r *Registry) Set(userID string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byUser[userID]; ok {
		delete(r.byClient, prev)
	}
	// a client re-joining under a different user ID keeps only its latest identity
	if prevID, ok := r.byClient[client]; ok {
		delete(r.byUser, prevID)
	}
	r.byUser[userID] = client
	r.byClient[client] = userID
}

// ClearClient removes whichever entry currently maps to client. Disconnects
// carry only the connection handle, never the user ID, so the reverse index
// does the lookup. Clearing a client that never joined is a no-op.
func (r *Registry) ClearClient(client *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byClient[client]
	if !ok {
		return "", false
	}
	// only drop the forward entry if this client still owns it; a newer
	// connection may have taken over the user ID in the meantime
	if current, ok := r.byUser[userID]; ok && current == client {
		delete(r.byUser, userID)
	}
	delete(r.byClient, client)
	return userID, true
}

// Lookup returns the active connection for userID, if any
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.byUser[userID]
	return client, ok
}

// UserIDs returns the sorted list of currently online user IDs
func (r *Registry) UserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
