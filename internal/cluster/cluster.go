// Package cluster partitions the users of a network into clusters of users
// reachable from one another over a single connection type.
//
// Algorithm:
//  1. Visit users in network insertion order.
//  2. From each unvisited user, run a depth-first traversal over that user's
//     edges of the chosen type (sorted by target), marking users visited.
//  3. Every user reached by one traversal lands in the same cluster, in
//     pre-order. Users with no edges of the type form singleton clusters.
//
// Directed mode follows outgoing edges only, so a traversal rooted at B does
// not reach A when only A→B exists and A was visited after B. Undirected mode
// also follows incoming edges, giving weakly connected components.
package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/sociograph/internal/network"
)

// ErrDanglingReference is matched by every *DanglingReferenceError.
var ErrDanglingReference = errors.New("dangling reference")

// DanglingReferenceError reports an edge whose target is not a tracked user,
// which means the model was mutated around its API.
type DanglingReferenceError struct {
	From network.UserID
	To   network.UserID
	Type string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("connection %q from %q targets untracked user %q", e.Type, e.From, e.To)
}

// Is lets errors.Is(err, ErrDanglingReference) match.
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}

// Mode selects which edges a traversal may follow.
type Mode int

const (
	// Directed follows outgoing edges only.
	Directed Mode = iota
	// Undirected follows edges in both directions.
	Undirected
)

func (m Mode) String() string {
	switch m {
	case Directed:
		return "directed"
	case Undirected:
		return "undirected"
	default:
		return "unknown"
	}
}

// ParseMode parses "directed" or "undirected". Empty selects Directed.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "directed", "outgoing":
		return Directed, nil
	case "undirected", "weak", "both":
		return Undirected, nil
	default:
		return Directed, fmt.Errorf("unknown cluster mode %q (use directed or undirected)", s)
	}
}

// Graph is the adjacency view clustering runs over. *network.Index
// implements it.
type Graph interface {
	UserIDs() []network.UserID
	Has(id network.UserID) bool
	Outgoing(id network.UserID, connType string) []network.UserID
	Incoming(id network.UserID, connType string) []network.UserID
}

// Options configures Build.
type Options struct {
	Mode Mode
}

// Cluster is one connected group of users.
type Cluster struct {
	Members []network.UserID `json:"members"`
	// Edges counts edges of the clustered type with both endpoints in the cluster.
	Edges int `json:"edges"`
	// Cohesion is Edges over the number of ordered member pairs, 1 for singletons.
	Cohesion float64 `json:"cohesion"`
}

// Size returns the number of members.
func (c Cluster) Size() int { return len(c.Members) }

// Result is the partition produced by Build.
type Result struct {
	ConnectionType string    `json:"connection_type"`
	Mode           string    `json:"mode"`
	Clusters       []Cluster `json:"clusters"`
	TotalUsers     int       `json:"total_users"`
	Singletons     int       `json:"singletons"`
}

type frame struct {
	id        network.UserID
	neighbors []network.UserID
	next      int
}

// Build partitions every user of g into clusters over connType edges.
// It runs in O(V+E) over the users and their connType edges and returns no
// partial result on error.
func Build(g Graph, connType string, opts Options) (Result, error) {
	ids := g.UserIDs()
	visited := make(map[network.UserID]bool, len(ids))
	clusterOf := make(map[network.UserID]int, len(ids))

	neighbors := func(id network.UserID) []network.UserID {
		out := g.Outgoing(id, connType)
		if opts.Mode != Undirected {
			return out
		}
		in := g.Incoming(id, connType)
		if len(in) == 0 {
			return out
		}
		both := make([]network.UserID, 0, len(out)+len(in))
		both = append(both, out...)
		return append(both, in...)
	}

	members := make([][]network.UserID, 0)
	for _, start := range ids {
		if visited[start] {
			continue
		}
		idx := len(members)
		component := []network.UserID{start}
		visited[start] = true
		clusterOf[start] = idx
		stack := []frame{{id: start, neighbors: neighbors(start)}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(top.neighbors) {
				stack = stack[:len(stack)-1]
				continue
			}
			next := top.neighbors[top.next]
			top.next++
			if !g.Has(next) {
				return Result{}, &DanglingReferenceError{From: top.id, To: next, Type: connType}
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			clusterOf[next] = idx
			component = append(component, next)
			stack = append(stack, frame{id: next, neighbors: neighbors(next)})
		}
		members = append(members, component)
	}

	clusters := make([]Cluster, len(members))
	for i, m := range members {
		clusters[i] = Cluster{Members: m}
	}
	// Count intra-cluster edges once per outgoing edge.
	for _, id := range ids {
		for _, target := range g.Outgoing(id, connType) {
			if id == target {
				continue
			}
			if ci, ok := clusterOf[target]; ok && ci == clusterOf[id] {
				clusters[ci].Edges++
			}
		}
	}

	singletons := 0
	for i := range clusters {
		clusters[i].Cohesion = cohesion(clusters[i])
		if clusters[i].Size() == 1 {
			singletons++
		}
	}

	return Result{
		ConnectionType: connType,
		Mode:           opts.Mode.String(),
		Clusters:       clusters,
		TotalUsers:     len(ids),
		Singletons:     singletons,
	}, nil
}

func cohesion(c Cluster) float64 {
	n := c.Size()
	if n <= 1 {
		return 1.0
	}
	possible := n * (n - 1)
	v := float64(c.Edges) / float64(possible)
	if v > 1 {
		v = 1
	}
	return v
}

// ClusterUsers partitions the users of n into clusters over outgoing
// connType edges, each cluster listing users in traversal order.
func ClusterUsers(n *network.Network, connType string) ([][]*network.User, error) {
	return ClusterUsersWith(n, connType, Options{})
}

// ClusterUsersWith is ClusterUsers with explicit options.
func ClusterUsersWith(n *network.Network, connType string, opts Options) ([][]*network.User, error) {
	res, err := Build(n.Index(), connType, opts)
	if err != nil {
		return nil, err
	}
	out := make([][]*network.User, 0, len(res.Clusters))
	for _, c := range res.Clusters {
		users := make([]*network.User, 0, c.Size())
		for _, id := range c.Members {
			u, ok := n.User(id)
			if !ok {
				return nil, &DanglingReferenceError{To: id, Type: connType}
			}
			users = append(users, u)
		}
		out = append(out, users)
	}
	return out, nil
}
