package hub

import (
	"sort"
	"sync"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Conn is one live client connection. Implementations must make Send
// non-blocking and safe to call after Close.
type Conn interface {
	ID() string
	Send(b []byte) error
	Close()
}

// Registry tracks live connections and the symbols each one wants.
// bySymbol is the inverted index of conns and is kept in step on every mutation.
type Registry struct {
	mu       sync.RWMutex
	conns    map[Conn]map[string]struct{}
	bySymbol map[string]map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[Conn]map[string]struct{}),
		bySymbol: make(map[string]map[Conn]struct{}),
	}
}

// Register adds conn with an empty subscription set.
func (r *Registry) Register(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return ErrAlreadyRegistered
	}
	r.conns[conn] = make(map[string]struct{})
	return nil
}

// Unregister removes conn and all its subscriptions. It reports whether conn was present.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[conn]
	if !ok {
		return false
	}
	for sym := range subs {
		r.removeLocked(conn, sym)
	}
	delete(r.conns, conn)
	return true
}

// Subscribe adds the normalized symbol to conn's set. Unknown connections and
// blank symbols are ignored. It reports whether conn now holds the symbol.
func (r *Registry) Subscribe(conn Conn, symbol string) bool {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[conn]
	if !ok {
		return false
	}
	subs[symbol] = struct{}{}
	if r.bySymbol[symbol] == nil {
		r.bySymbol[symbol] = make(map[Conn]struct{})
	}
	r.bySymbol[symbol][conn] = struct{}{}
	return true
}

// Unsubscribe removes the normalized symbol from conn's set. It reports whether anything was removed.
func (r *Registry) Unsubscribe(conn Conn, symbol string) bool {
	symbol = models.NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[conn]
	if !ok {
		return false
	}
	if _, held := subs[symbol]; !held {
		return false
	}
	delete(subs, symbol)
	r.removeLocked(conn, symbol)
	return true
}

// SnapshotDistinctSymbols returns the sorted union of every live connection's symbols.
func (r *Registry) SnapshotDistinctSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ConnectionsInterestedIn returns a copy of the connections subscribed to symbol.
func (r *Registry) ConnectionsInterestedIn(symbol string) []Conn {
	symbol = models.NormalizeSymbol(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.bySymbol[symbol]
	out := make([]Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Subscriptions returns conn's symbols, sorted. Nil if conn is not registered.
func (r *Registry) Subscriptions(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.conns[conn]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(subs))
	for sym := range subs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Contains(conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[conn]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) SymbolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySymbol)
}

// removeLocked drops conn from the symbol index, caller must hold write lock
func (r *Registry) removeLocked(conn Conn, symbol string) {
	conns := r.bySymbol[symbol]
	if conns == nil {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.bySymbol, symbol)
	}
}

// Conns returns every registered connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}
