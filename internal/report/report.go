// Package report ranks posts by engagement and bundles the ranking with the
// word frequencies of the same filtered posts.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/wordfreq"
)

// Criterion selects how post importance is scored.
type Criterion string

const (
	ByComments Criterion = "comments"
	ByViews    Criterion = "views"
	Combined   Criterion = "combined"
)

// ParseCriterion accepts comments, views or combined. Empty selects views.
func ParseCriterion(s string) (Criterion, error) {
	switch c := Criterion(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ByViews, nil
	case ByComments, ByViews, Combined:
		return c, nil
	default:
		return "", fmt.Errorf("unknown importance criterion %q (use comments, views or combined)", s)
	}
}

// Importance scores a post: 100 per comment, 100 per view, or 50 per comment
// or view combined. Unknown criteria score 0.
func Importance(p *network.Post, c Criterion) int {
	comments := len(p.Comments())
	views := p.Views()
	switch c {
	case ByComments:
		return comments * 100
	case ByViews:
		return views * 100
	case Combined:
		return (comments + views) * 50
	default:
		return 0
	}
}

// RankedPost is a post with its engagement numbers.
type RankedPost struct {
	Rank       int              `json:"rank"`
	ID         network.PostID   `json:"id"`
	Creator    network.UserID   `json:"creator"`
	Content    string           `json:"content"`
	Views      int              `json:"views"`
	Comments   int              `json:"comments"`
	Importance int              `json:"importance"`
	SeenBy     []network.UserID `json:"seen_by,omitempty"`
}

// Trending ranks posts by view count, most viewed first. Ties keep input order.
func Trending(posts []*network.Post) []RankedPost {
	return Rank(posts, ByViews)
}

// Rank orders posts by Importance under c, highest first. Ties keep input order.
func Rank(posts []*network.Post, c Criterion) []RankedPost {
	ranked := make([]RankedPost, 0, len(posts))
	for _, p := range posts {
		ranked = append(ranked, RankedPost{
			ID:         p.ID(),
			Creator:    p.Creator(),
			Content:    p.Content(),
			Views:      p.Views(),
			Comments:   len(p.Comments()),
			Importance: Importance(p, c),
			SeenBy:     p.SeenBy(),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Report is a trending ranking and the word frequencies of the same posts.
type Report struct {
	Criterion    Criterion        `json:"criterion"`
	MatchedPosts int              `json:"matched_posts"`
	Posts        []RankedPost     `json:"posts"`
	TopWords     []wordfreq.Entry `json:"top_words"`
	TotalTokens  int              `json:"total_tokens"`
}

// Build filters the posts of n, ranks them under crit and counts their words,
// keeping the topN most frequent (all when topN <= 0).
func Build(n *network.Network, c filter.Criteria, crit Criterion, topN int) Report {
	posts := filter.Posts(n, c)
	freq := wordfreq.Count(posts)
	return Report{
		Criterion:    crit,
		MatchedPosts: len(posts),
		Posts:        Rank(posts, crit),
		TopWords:     freq.Top(topN),
		TotalTokens:  freq.Total(),
	}
}
