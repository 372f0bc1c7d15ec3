package report

import (
	"time"

	"github.com/hurttlocker/sociograph/internal/network"
)

// PostSummary is the wire form of a post.
type PostSummary struct {
	ID           network.PostID   `json:"id"`
	Creator      network.UserID   `json:"creator"`
	Content      string           `json:"content"`
	RespondingTo network.PostID   `json:"responding_to,omitempty"`
	TimeAndDate  *time.Time       `json:"time_and_date,omitempty"`
	SeenBy       []network.UserID `json:"seen_by"`
	Comments     []string         `json:"comments"`
}

// DescribePost captures p.
func DescribePost(p *network.Post) PostSummary {
	return PostSummary{
		ID:           p.ID(),
		Creator:      p.Creator(),
		Content:      p.Content(),
		RespondingTo: p.RespondingTo(),
		TimeAndDate:  p.TimeAndDate(),
		SeenBy:       nonNil(p.SeenBy()),
		Comments:     nonNil(p.Comments()),
	}
}

// DescribePosts captures posts in order.
func DescribePosts(posts []*network.Post) []PostSummary {
	out := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		out = append(out, DescribePost(p))
	}
	return out
}

// UserSummary is the wire form of a user.
type UserSummary struct {
	ID          network.UserID       `json:"user_id"`
	Attributes  network.Attributes   `json:"attributes"`
	Connections []network.Connection `json:"connections"`
	Followers   int                  `json:"incoming_connections"`
	Authored    []network.PostID     `json:"authored_posts"`
	Read        []network.PostID     `json:"read_posts"`
}

// DescribeUser captures the user id of n. The second result is false when
// the user does not exist.
func DescribeUser(n *network.Network, id network.UserID) (UserSummary, bool) {
	u, ok := n.User(id)
	if !ok {
		return UserSummary{}, false
	}
	return UserSummary{
		ID:          u.ID(),
		Attributes:  u.Attributes(),
		Connections: nonNil(u.Connections()),
		Followers:   len(n.Index().Incoming(id, network.AnyType)),
		Authored:    nonNil(u.AuthoredPosts()),
		Read:        nonNil(u.ReadPosts()),
	}, true
}

// NetworkStats summarises the size of a network.
type NetworkStats struct {
	Users           int      `json:"users"`
	Posts           int      `json:"posts"`
	Connections     int      `json:"connections"`
	ConnectionTypes []string `json:"connection_types"`
	Views           int      `json:"views"`
	Comments        int      `json:"comments"`
}

// Stats counts the entities of n.
func Stats(n *network.Network) NetworkStats {
	s := NetworkStats{
		Users:           n.Len(),
		Posts:           n.PostCount(),
		Connections:     n.ConnectionCount(),
		ConnectionTypes: nonNil(n.ConnectionTypes()),
	}
	for _, p := range n.Posts() {
		s.Views += p.Views()
		s.Comments += len(p.Comments())
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
