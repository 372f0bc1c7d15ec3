package network

import "fmt"

// SeenByAge returns the viewers of a post whose age is known and within
// [minAge, maxAge].
func (n *Network) SeenByAge(postID PostID, minAge, maxAge int) ([]*User, error) {
	return n.viewersWhere(postID, func(u *User) bool {
		return u.attrs.Age != nil && *u.attrs.Age >= minAge && *u.attrs.Age <= maxAge
	})
}

// SeenByLocation returns the viewers of a post from the given country, or
// from the given region when country is empty. With neither set the result
// is empty.
func (n *Network) SeenByLocation(postID PostID, country, region string) ([]*User, error) {
	switch {
	case country != "":
		return n.viewersWhere(postID, func(u *User) bool {
			return u.attrs.Country != nil && *u.attrs.Country == country
		})
	case region != "":
		return n.viewersWhere(postID, func(u *User) bool {
			return u.attrs.Region != nil && *u.attrs.Region == region
		})
	default:
		if _, ok := n.posts[postID]; !ok {
			return nil, fmt.Errorf("post %q: %w", postID, ErrUnknownPost)
		}
		return []*User{}, nil
	}
}

func (n *Network) viewersWhere(postID PostID, match func(*User) bool) ([]*User, error) {
	p, ok := n.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %q: %w", postID, ErrUnknownPost)
	}
	out := make([]*User, 0, len(p.seenBy))
	for _, id := range p.seenBy {
		if u, ok := n.users[id]; ok && match(u) {
			out = append(out, u)
		}
	}
	return out, nil
}
