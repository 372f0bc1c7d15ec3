// Package wordfreq turns filtered post content into word counts, the input a
// word-cloud renderer consumes.
//
// Tokens are lower-cased, whitespace-delimited words with every rune that is
// not a letter, digit or underscore removed. There is no stemming, stop-word
// removal or frequency threshold; those belong to the renderer.
package wordfreq

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/network"
)

// Frequencies maps a token to its positive occurrence count. A missing key
// means zero.
type Frequencies map[string]int

// Entry is one token and its count.
type Entry struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// Tokenize splits content into cleaned tokens.
func Tokenize(content string) []string {
	fields := strings.Fields(strings.ToLower(content))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := clean(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func clean(word string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return -1
	}, word)
}

// Count tallies tokens across all posts cumulatively.
func Count(posts []*network.Post) Frequencies {
	freq := make(Frequencies)
	for _, p := range posts {
		for _, t := range Tokenize(p.Content()) {
			freq[t]++
		}
	}
	return freq
}

// Aggregate filters posts with the given criteria and counts the tokens of
// what remains. An empty map means nothing matched.
func Aggregate(users []*network.User, posts []*network.Post, include, exclude []string, attrs network.Attributes) Frequencies {
	return Count(filter.Apply(users, posts, filter.Criteria{
		UserAttributes: attrs,
		Include:        include,
		Exclude:        exclude,
	}))
}

// AggregateNetwork runs Aggregate over every user and post of n.
func AggregateNetwork(n *network.Network, c filter.Criteria) Frequencies {
	return Count(filter.Posts(n, c))
}

// Total returns the sum of all counts.
func (f Frequencies) Total() int {
	total := 0
	for _, c := range f {
		total += c
	}
	return total
}

// Top returns the n most frequent tokens, highest count first and ties in
// token order. n <= 0 returns every token.
func (f Frequencies) Top(n int) []Entry {
	entries := make([]Entry, 0, len(f))
	for token, count := range f {
		entries = append(entries, Entry{Token: token, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Token < entries[j].Token
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
