package filter

import "github.com/hurttlocker/sociograph/internal/network"

// Activity selects users by how many posts they authored and by a couple of
// profile fields. Zero-valued fields are ignored.
type Activity struct {
	MinPosts *int
	MaxPosts *int
	Gender   string
	Country  string
}

// ByActivity returns the users matching a, in input order.
func ByActivity(users []*network.User, a Activity) []*network.User {
	out := make([]*network.User, 0, len(users))
	for _, u := range users {
		posts := len(u.AuthoredPosts())
		if a.MinPosts != nil && posts < *a.MinPosts {
			continue
		}
		if a.MaxPosts != nil && posts > *a.MaxPosts {
			continue
		}
		attrs := u.Attributes()
		if a.Gender != "" && (attrs.Gender == nil || *attrs.Gender != a.Gender) {
			continue
		}
		if a.Country != "" && (attrs.Country == nil || *attrs.Country != a.Country) {
			continue
		}
		out = append(out, u)
	}
	return out
}
