package network

import (
	"cmp"
	"slices"
)

// Edge is a connection expressed with both endpoints, the raw input to NewIndex.
type Edge struct {
	From UserID
	To   UserID
	Type string
}

// Index is the connection index: per-user adjacency lists keyed by
// connection type, in both directions. It is derived from a Network and is
// rebuilt after the users or connections change.
type Index struct {
	order    []UserID
	members  map[UserID]struct{}
	outgoing map[UserID]map[string][]UserID
	incoming map[UserID]map[string][]UserID
	edges    int
}

// NewIndex builds an index over the given users and edges. Edges may name
// users that are not in ids; Has reports membership so callers can detect
// such dangling targets.
func NewIndex(ids []UserID, edges []Edge) *Index {
	ix := &Index{
		order:    slices.Clone(ids),
		members:  make(map[UserID]struct{}, len(ids)),
		outgoing: make(map[UserID]map[string][]UserID),
		incoming: make(map[UserID]map[string][]UserID),
		edges:    len(edges),
	}
	for _, id := range ids {
		ix.members[id] = struct{}{}
	}

	sorted := slices.Clone(edges)
	slices.SortStableFunc(sorted, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return compareConnections(Connection{Type: a.Type, Target: a.To}, Connection{Type: b.Type, Target: b.To})
	})
	for _, e := range sorted {
		addAdjacent(ix.outgoing, e.From, e.Type, e.To)
		addAdjacent(ix.outgoing, e.From, AnyType, e.To)
	}

	// Incoming lists are ordered by source id for determinism.
	slices.SortStableFunc(sorted, func(a, b Edge) int {
		if c := cmp.Compare(a.To, b.To); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.From, b.From)
	})
	for _, e := range sorted {
		addAdjacent(ix.incoming, e.To, e.Type, e.From)
		addAdjacent(ix.incoming, e.To, AnyType, e.From)
	}
	return ix
}

func addAdjacent(m map[UserID]map[string][]UserID, from UserID, connType string, to UserID) {
	byType, ok := m[from]
	if !ok {
		byType = make(map[string][]UserID)
		m[from] = byType
	}
	byType[connType] = append(byType[connType], to)
}

// UserIDs returns the indexed users in network insertion order.
func (ix *Index) UserIDs() []UserID { return slices.Clone(ix.order) }

// Has reports whether id is one of the indexed users.
func (ix *Index) Has(id UserID) bool {
	_, ok := ix.members[id]
	return ok
}

// Outgoing returns the targets of id's connType edges in sorted order.
// AnyType returns the targets of every edge. The slice must not be modified.
func (ix *Index) Outgoing(id UserID, connType string) []UserID {
	return ix.outgoing[id][connType]
}

// Incoming returns the sources of connType edges pointing at id.
// The slice must not be modified.
func (ix *Index) Incoming(id UserID, connType string) []UserID {
	return ix.incoming[id][connType]
}

// EdgeCount returns the number of indexed edges of every type.
func (ix *Index) EdgeCount() int { return ix.edges }

// Index returns the network's connection index, building it if the users or
// connections changed since the last call. Safe for concurrent readers.
func (n *Network) Index() *Index {
	n.indexMu.Lock()
	defer n.indexMu.Unlock()
	if n.index != nil {
		return n.index
	}

	edges := make([]Edge, 0)
	for _, id := range n.userOrder {
		for _, c := range n.users[id].connections {
			edges = append(edges, Edge{From: id, To: c.Target, Type: c.Type})
		}
	}
	n.index = NewIndex(n.userOrder, edges)
	return n.index
}

func (n *Network) invalidateIndex() {
	n.indexMu.Lock()
	n.index = nil
	n.indexMu.Unlock()
}
