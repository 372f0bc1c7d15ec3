// Package network holds the in-memory social graph: users, posts and the
// directed, typed connections between users.
//
// The Network owns every User and Post. Cross references (a connection's
// target, a post's creator, a user's authored and read posts) are stored as
// identifiers and resolved through the Network, so no entity owns another.
//
// A Network is not safe for concurrent mutation. Read-only analyses may run
// concurrently with each other as long as nothing mutates the same Network.
package network

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnyType selects every connection regardless of its type tag.
const AnyType = ""

// UserID identifies a user. It is never reused or changed after creation.
type UserID string

// PostID identifies a post.
type PostID string

// Attributes are the optional profile fields of a user. A nil field is absent.
type Attributes struct {
	Name    *string `json:"name,omitempty" yaml:"name,omitempty"`
	Gender  *string `json:"gender,omitempty" yaml:"gender,omitempty"`
	Age     *int    `json:"age,omitempty" yaml:"age,omitempty"`
	Country *string `json:"country,omitempty" yaml:"country,omitempty"`
	Region  *string `json:"region,omitempty" yaml:"region,omitempty"`
}

// IsZero reports whether no attribute is set.
func (a Attributes) IsZero() bool {
	return a.Name == nil && a.Gender == nil && a.Age == nil && a.Country == nil && a.Region == nil
}

// clone returns a copy that shares no pointers with a.
func (a Attributes) clone() Attributes {
	return Attributes{
		Name:    clonePtr(a.Name),
		Gender:  clonePtr(a.Gender),
		Age:     clonePtr(a.Age),
		Country: clonePtr(a.Country),
		Region:  clonePtr(a.Region),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// String returns a pointer to v, for building Attributes inline.
func String(v string) *string { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Connection is a typed directed edge to another user.
type Connection struct {
	Type   string `json:"type" yaml:"type"`
	Target UserID `json:"target" yaml:"target"`
}

func compareConnections(a, b Connection) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Target, b.Target)
}

// User is a member of the network.
type User struct {
	id          UserID
	attrs       Attributes
	connections []Connection
	authored    []PostID
	read        []PostID
}

// ID returns the user's identifier.
func (u *User) ID() UserID { return u.id }

// Attributes returns a copy of the user's profile fields.
func (u *User) Attributes() Attributes { return u.attrs.clone() }

// Connections returns the user's outgoing connections sorted by (type, target).
func (u *User) Connections() []Connection { return slices.Clone(u.connections) }

// ConnectionsByType returns the outgoing connections whose type equals
// connType, in sorted order. AnyType returns all of them.
func (u *User) ConnectionsByType(connType string) []Connection {
	if connType == AnyType {
		return u.Connections()
	}
	out := make([]Connection, 0)
	for _, c := range u.connections {
		if c.Type == connType {
			out = append(out, c)
		}
	}
	return out
}

// AuthoredPosts returns the ids of posts created by the user.
func (u *User) AuthoredPosts() []PostID { return slices.Clone(u.authored) }

// ReadPosts returns the ids of posts the user has viewed, each at most once.
func (u *User) ReadPosts() []PostID { return slices.Clone(u.read) }

// Post is a piece of content authored by a user.
type Post struct {
	id           PostID
	creator      UserID
	content      string
	respondingTo PostID
	timeAndDate  *time.Time
	seenBy       []UserID
	comments     []string
}

// ID returns the post's identifier.
func (p *Post) ID() PostID { return p.id }

// Creator returns the id of the authoring user.
func (p *Post) Creator() UserID { return p.creator }

// Content returns the post text.
func (p *Post) Content() string { return p.content }

// RespondingTo returns the id of the post this one replies to, or "".
func (p *Post) RespondingTo() PostID { return p.respondingTo }

// TimeAndDate returns the creation timestamp, or nil when unknown.
func (p *Post) TimeAndDate() *time.Time { return clonePtr(p.timeAndDate) }

// SeenBy returns the viewers of the post in first-view order.
func (p *Post) SeenBy() []UserID { return slices.Clone(p.seenBy) }

// Views returns the number of distinct viewers.
func (p *Post) Views() int { return len(p.seenBy) }

// Comments returns the free-text comments in insertion order.
func (p *Post) Comments() []string { return slices.Clone(p.comments) }

// PostInput describes a post to create.
type PostInput struct {
	ID           PostID
	Creator      UserID
	Content      string
	RespondingTo PostID
	TimeAndDate  *time.Time
}

// Network is the entity model: every user and post plus the connection index
// derived from them.
type Network struct {
	users     map[UserID]*User
	userOrder []UserID
	posts     map[PostID]*Post
	postOrder []PostID

	indexMu sync.Mutex
	index   *Index
}

// New returns an empty network.
func New() *Network {
	return &Network{
		users: make(map[UserID]*User),
		posts: make(map[PostID]*Post),
	}
}

// AddUser creates a user when id is not already present and reports whether
// it did. A duplicate id is a no-op: the first call's attributes are kept.
func (n *Network) AddUser(id UserID, attrs Attributes) bool {
	if _, ok := n.users[id]; ok {
		return false
	}
	n.users[id] = &User{
		id:          id,
		attrs:       attrs.clone(),
		connections: make([]Connection, 0),
		authored:    make([]PostID, 0),
		read:        make([]PostID, 0),
	}
	n.userOrder = append(n.userOrder, id)
	n.invalidateIndex()
	return true
}

// AddConnection appends a connType edge from one user to another. Both users
// must exist.
func (n *Network) AddConnection(from, to UserID, connType string) error {
	src, ok := n.users[from]
	if !ok {
		return &UnknownUserError{ID: from}
	}
	if _, ok := n.users[to]; !ok {
		return &UnknownUserError{ID: to}
	}

	c := Connection{Type: connType, Target: to}
	// Insert after any equal element so duplicates keep their append order.
	i, found := slices.BinarySearchFunc(src.connections, c, compareConnections)
	for found && i < len(src.connections) && compareConnections(src.connections[i], c) == 0 {
		i++
	}
	src.connections = slices.Insert(src.connections, i, c)
	n.invalidateIndex()
	return nil
}

// AddPost creates a post. The creator must exist, RespondingTo (when set)
// must name an existing post, and an explicit ID must be unused. A random
// UUID is assigned when ID is empty.
func (n *Network) AddPost(in PostInput) (*Post, error) {
	creator, ok := n.users[in.Creator]
	if !ok {
		return nil, &UnknownUserError{ID: in.Creator}
	}
	if in.RespondingTo != "" {
		if _, ok := n.posts[in.RespondingTo]; !ok {
			return nil, fmt.Errorf("responding to %q: %w", in.RespondingTo, ErrUnknownPost)
		}
	}

	id := in.ID
	if id == "" {
		id = PostID(uuid.NewString())
	}
	if _, exists := n.posts[id]; exists {
		return nil, fmt.Errorf("post %q: %w", id, ErrDuplicatePost)
	}

	p := &Post{
		id:           id,
		creator:      in.Creator,
		content:      in.Content,
		respondingTo: in.RespondingTo,
		timeAndDate:  clonePtr(in.TimeAndDate),
		seenBy:       make([]UserID, 0),
		comments:     make([]string, 0),
	}
	n.posts[id] = p
	n.postOrder = append(n.postOrder, id)
	creator.authored = append(creator.authored, id)
	return p, nil
}

// RecordView marks the post as seen by the user. Repeated views are ignored
// on both the post's viewer set and the user's read list.
func (n *Network) RecordView(userID UserID, postID PostID) error {
	u, ok := n.users[userID]
	if !ok {
		return &UnknownUserError{ID: userID}
	}
	p, ok := n.posts[postID]
	if !ok {
		return fmt.Errorf("post %q: %w", postID, ErrUnknownPost)
	}
	if !slices.Contains(p.seenBy, userID) {
		p.seenBy = append(p.seenBy, userID)
	}
	if !slices.Contains(u.read, postID) {
		u.read = append(u.read, postID)
	}
	return nil
}

// AddComment appends a free-text comment to a post.
func (n *Network) AddComment(postID PostID, text string) error {
	p, ok := n.posts[postID]
	if !ok {
		return fmt.Errorf("post %q: %w", postID, ErrUnknownPost)
	}
	p.comments = append(p.comments, text)
	return nil
}

// User looks up a user by id.
func (n *Network) User(id UserID) (*User, bool) {
	u, ok := n.users[id]
	return u, ok
}

// Post looks up a post by id.
func (n *Network) Post(id PostID) (*Post, bool) {
	p, ok := n.posts[id]
	return p, ok
}

// Users returns every user in insertion order.
func (n *Network) Users() []*User {
	out := make([]*User, 0, len(n.userOrder))
	for _, id := range n.userOrder {
		out = append(out, n.users[id])
	}
	return out
}

// Posts returns every post in creation order.
func (n *Network) Posts() []*Post {
	out := make([]*Post, 0, len(n.postOrder))
	for _, id := range n.postOrder {
		out = append(out, n.posts[id])
	}
	return out
}

// Len returns the number of users.
func (n *Network) Len() int { return len(n.userOrder) }

// PostCount returns the number of posts.
func (n *Network) PostCount() int { return len(n.postOrder) }

// ConnectionCount returns the number of connections of every type.
func (n *Network) ConnectionCount() int {
	total := 0
	for _, u := range n.users {
		total += len(u.connections)
	}
	return total
}

// ConnectionTypes returns the distinct connection types in sorted order.
func (n *Network) ConnectionTypes() []string {
	seen := make(map[string]struct{})
	for _, u := range n.users {
		for _, c := range u.connections {
			seen[c.Type] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
