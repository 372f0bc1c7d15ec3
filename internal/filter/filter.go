// Package filter selects posts by author attributes and keywords.
//
// Evaluation order is attribute filter first (it prunes the author set),
// then the include keywords, then the exclude keywords. A post containing an
// excluded keyword is dropped even when it also contains an included one.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hurttlocker/sociograph/internal/network"
)

// ErrUnknownAttribute reports an attribute name outside the user schema.
var ErrUnknownAttribute = errors.New("unknown user attribute")

// AttributeNames lists the attribute names accepted by ParseAttributes.
var AttributeNames = []string{"name", "gender", "age", "country", "region"}

// Criteria selects posts. The zero value matches every post.
type Criteria struct {
	// UserAttributes lists required author attribute values; nil fields are ignored.
	UserAttributes network.Attributes
	// Include keeps posts containing at least one of these substrings
	// (case-insensitive). Empty means no include filter.
	Include []string
	// Exclude drops posts containing any of these substrings (case-insensitive).
	Exclude []string
}

// MatchesAttributes reports whether every attribute set in want is present on
// the user with an equal value. A user missing a wanted attribute never matches.
func MatchesAttributes(u *network.User, want network.Attributes) bool {
	have := u.Attributes()
	return matchString(have.Name, want.Name) &&
		matchString(have.Gender, want.Gender) &&
		matchInt(have.Age, want.Age) &&
		matchString(have.Country, want.Country) &&
		matchString(have.Region, want.Region)
}

func matchString(have, want *string) bool {
	if want == nil {
		return true
	}
	return have != nil && *have == *want
}

func matchInt(have, want *int) bool {
	if want == nil {
		return true
	}
	return have != nil && *have == *want
}

// Users returns the users matching want, in input order. A zero want
// returns every user.
func Users(users []*network.User, want network.Attributes) []*network.User {
	out := make([]*network.User, 0, len(users))
	for _, u := range users {
		if MatchesAttributes(u, want) {
			out = append(out, u)
		}
	}
	return out
}

// Apply returns the posts whose creator is among the attribute-matching
// users and whose content passes the keyword filters. Input order is kept
// and the inputs are not modified. Nothing matching yields an empty slice.
func Apply(users []*network.User, posts []*network.Post, c Criteria) []*network.Post {
	authors := make(map[network.UserID]struct{}, len(users))
	for _, u := range Users(users, c.UserAttributes) {
		authors[u.ID()] = struct{}{}
	}

	include := normalizeKeywords(c.Include)
	exclude := normalizeKeywords(c.Exclude)

	out := make([]*network.Post, 0)
	for _, p := range posts {
		if _, ok := authors[p.Creator()]; !ok {
			continue
		}
		content := strings.ToLower(p.Content())
		if len(include) > 0 && !containsAny(content, include) {
			continue
		}
		if containsAny(content, exclude) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Posts applies c to every user and post of n.
func Posts(n *network.Network, c Criteria) []*network.Post {
	return Apply(n.Users(), n.Posts(), c)
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		// Whitespace-only keywords are blank; others match verbatim, spaces included.
		if strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, strings.ToLower(k))
	}
	return out
}

func containsAny(content string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}

// ParseAttributes builds required attribute values from name/value pairs,
// e.g. {"age": "25", "country": "USA"}. Names are case-insensitive and must
// be one of AttributeNames.
func ParseAttributes(raw map[string]string) (network.Attributes, error) {
	var attrs network.Attributes

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(raw[key])
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			attrs.Name = network.String(value)
		case "gender":
			attrs.Gender = network.String(value)
		case "age":
			age, err := strconv.Atoi(value)
			if err != nil {
				return network.Attributes{}, fmt.Errorf("age %q: not an integer", value)
			}
			attrs.Age = network.Int(age)
		case "country":
			attrs.Country = network.String(value)
		case "region":
			attrs.Region = network.String(value)
		default:
			return network.Attributes{}, fmt.Errorf("%w %q (valid: %s)", ErrUnknownAttribute, key, strings.Join(AttributeNames, ", "))
		}
	}
	return attrs, nil
}

// ParseAttributePairs parses "key=value" strings as produced by repeated
// --attr flags.
func ParseAttributePairs(pairs []string) (network.Attributes, error) {
	raw := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return network.Attributes{}, fmt.Errorf("attribute %q: want key=value", pair)
		}
		raw[key] = value
	}
	return ParseAttributes(raw)
}

// SplitKeywords splits a comma-separated keyword list, dropping blanks.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
