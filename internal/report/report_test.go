package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/network"
)

func engagementNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New()
	for _, id := range []network.UserID{"alice", "bob", "charlie"} {
		n.AddUser(id, network.Attributes{})
	}
	for _, in := range []network.PostInput{
		{ID: "p1", Creator: "alice", Content: "Alice's first post about data science"},
		{ID: "p2", Creator: "bob", Content: "Bob's thoughts on machine learning"},
		{ID: "p3", Creator: "charlie", Content: "Charlie's tutorial on Python"},
	} {
		_, err := n.AddPost(in)
		require.NoError(t, err)
	}
	for _, c := range []string{"Great post!", "Very informative", "Thanks for sharing"} {
		require.NoError(t, n.AddComment("p1", c))
	}
	require.NoError(t, n.AddComment("p2", "Interesting perspective"))
	require.NoError(t, n.RecordView("alice", "p3"))
	require.NoError(t, n.RecordView("bob", "p3"))
	require.NoError(t, n.RecordView("bob", "p2"))
	return n
}

func TestImportance(t *testing.T) {
	n := engagementNetwork(t)
	p1, _ := n.Post("p1")
	p3, _ := n.Post("p3")

	assert.Equal(t, 300, Importance(p1, ByComments))
	assert.Equal(t, 0, Importance(p1, ByViews))
	assert.Equal(t, 150, Importance(p1, Combined))
	assert.Equal(t, 200, Importance(p3, ByViews))
	assert.Equal(t, 0, Importance(p3, Criterion("likes")))
}

func TestTrending_OrdersByViewsStable(t *testing.T) {
	n := engagementNetwork(t)
	ranked := Trending(n.Posts())
	require.Len(t, ranked, 3)

	assert.Equal(t, network.PostID("p3"), ranked[0].ID)
	assert.Equal(t, network.PostID("p2"), ranked[1].ID)
	assert.Equal(t, network.PostID("p1"), ranked[2].ID)
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.Equal(t, []network.UserID{"alice", "bob"}, ranked[0].SeenBy)
}

func TestRank_Combined(t *testing.T) {
	n := engagementNetwork(t)
	ranked := Rank(n.Posts(), Combined)
	// p1: 3 comments, p2: 1+1, p3: 2 views -> 150, 100, 100 with p2 before p3.
	assert.Equal(t, network.PostID("p1"), ranked[0].ID)
	assert.Equal(t, network.PostID("p2"), ranked[1].ID)
	assert.Equal(t, network.PostID("p3"), ranked[2].ID)
}

func TestParseCriterion(t *testing.T) {
	c, err := ParseCriterion("")
	require.NoError(t, err)
	assert.Equal(t, ByViews, c)

	c, err = ParseCriterion(" Comments ")
	require.NoError(t, err)
	assert.Equal(t, ByComments, c)

	_, err = ParseCriterion("likes")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	n := engagementNetwork(t)
	r := Build(n, filter.Criteria{Include: []string{"on"}}, ByViews, 2)

	assert.Equal(t, 2, r.MatchedPosts)
	require.Len(t, r.Posts, 2)
	assert.Equal(t, network.PostID("p3"), r.Posts[0].ID)
	assert.Len(t, r.TopWords, 2)
	assert.Equal(t, "on", r.TopWords[0].Token)
	assert.Equal(t, 2, r.TopWords[0].Count)
	assert.Equal(t, 9, r.TotalTokens)
}

func TestBuild_NoMatches(t *testing.T) {
	n := engagementNetwork(t)
	r := Build(n, filter.Criteria{Include: []string{"zzz"}}, ByViews, 5)
	assert.Zero(t, r.MatchedPosts)
	assert.Empty(t, r.Posts)
	assert.Empty(t, r.TopWords)
}

func TestDescribeUser(t *testing.T) {
	n := engagementNetwork(t)
	require.NoError(t, n.AddConnection("bob", "alice", "follows"))
	require.NoError(t, n.AddConnection("charlie", "alice", "friend"))

	s, ok := DescribeUser(n, "alice")
	require.True(t, ok)
	assert.Equal(t, network.UserID("alice"), s.ID)
	assert.Equal(t, 2, s.Followers)
	assert.Equal(t, []network.PostID{"p1"}, s.Authored)
	assert.Equal(t, []network.PostID{"p3"}, s.Read)
	assert.NotNil(t, s.Connections)
	assert.Empty(t, s.Connections)

	_, ok = DescribeUser(n, "nobody")
	assert.False(t, ok)
}

func TestDescribePost(t *testing.T) {
	n := engagementNetwork(t)
	p1, _ := n.Post("p1")
	s := DescribePost(p1)
	assert.Equal(t, network.UserID("alice"), s.Creator)
	assert.Len(t, s.Comments, 3)
	assert.NotNil(t, s.SeenBy)
	assert.Empty(t, s.SeenBy)
}

func TestStats(t *testing.T) {
	n := engagementNetwork(t)
	require.NoError(t, n.AddConnection("bob", "alice", "follows"))

	s := Stats(n)
	assert.Equal(t, NetworkStats{
		Users:           3,
		Posts:           3,
		Connections:     1,
		ConnectionTypes: []string{"follows"},
		Views:           3,
		Comments:        4,
	}, s)
}
