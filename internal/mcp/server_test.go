package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/sociograph/internal/cluster"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/store"
)

// helper: the clustering and filtering scenario network
func setupTestNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New()
	n.AddUser("A", network.Attributes{Age: network.Int(25), Country: network.String("USA")})
	n.AddUser("B", network.Attributes{Age: network.Int(30)})
	n.AddUser("C", network.Attributes{})
	n.AddUser("D", network.Attributes{})
	for _, e := range [][2]network.UserID{{"A", "B"}, {"B", "C"}} {
		if err := n.AddConnection(e[0], e[1], "follows"); err != nil {
			t.Fatalf("adding connection: %v", err)
		}
	}
	for _, in := range []network.PostInput{
		{ID: "P1", Creator: "A", Content: "Social media trends are fascinating."},
		{ID: "P2", Creator: "B", Content: "Technology is shaping the future of social media."},
		{ID: "P3", Creator: "A", Content: "The impact of technology on society is immense."},
	} {
		if _, err := n.AddPost(in); err != nil {
			t.Fatalf("adding post: %v", err)
		}
	}
	return n
}

func newTestServer(t *testing.T) (*server.MCPServer, *network.Guarded) {
	t.Helper()
	g := network.NewGuarded(setupTestNetwork(t))
	return NewServer(ServerConfig{Network: g, Version: "test"}), g
}

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerConfig{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool is a helper that invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func callResource(t *testing.T, srv *server.MCPServer, uri string) string {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params": map[string]interface{}{
			"uri": uri,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Contents []struct {
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result.Contents) == 0 {
		t.Fatal("no resource contents")
	}
	return resp.Result.Contents[0].Text
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestClustersTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result := callTool(t, srv, "sociograph_clusters", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}
	var res cluster.Result
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(res.Clusters) != 2 || res.Clusters[0].Size() != 3 || res.Clusters[1].Members[0] != "D" {
		t.Errorf("clusters = %+v", res.Clusters)
	}

	result = callTool(t, srv, "sociograph_clusters", map[string]interface{}{"mode": "sideways"})
	if !result.IsError {
		t.Error("expected error for invalid mode")
	}
}

func TestFilterPostsTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result := callTool(t, srv, "sociograph_filter_posts", map[string]interface{}{
		"include": "social, technology",
		"exclude": "future",
		"age":     25,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}
	var resp struct {
		Count int `json:"count"`
		Posts []struct {
			ID string `json:"id"`
		} `json:"posts"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &resp); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if resp.Count != 2 || resp.Posts[0].ID != "P1" || resp.Posts[1].ID != "P3" {
		t.Errorf("filtered posts = %+v", resp)
	}
}

func TestWordFreqTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result := callTool(t, srv, "sociograph_wordfreq", map[string]interface{}{
		"include": "social,technology",
		"exclude": "future",
		"age":     25,
		"top":     0,
	})
	text := getTextContent(t, result)
	var resp struct {
		TotalTokens int `json:"total_tokens"`
		Words       []struct {
			Token string `json:"token"`
			Count int    `json:"count"`
		} `json:"words"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if resp.TotalTokens != 13 || len(resp.Words) != 13 {
		t.Errorf("wordfreq = %s", text)
	}
}

func TestTrendingTool(t *testing.T) {
	srv, g := newTestServer(t)
	if err := g.Update(func(n *network.Network) error { return n.RecordView("C", "P2") }); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, srv, "sociograph_trending", map[string]interface{}{"top": 1})
	text := getTextContent(t, result)
	if !strings.Contains(text, `"id": "P2"`) || strings.Contains(text, `"id": "P1"`) {
		t.Errorf("trending top=1 = %s", text)
	}

	result = callTool(t, srv, "sociograph_trending", map[string]interface{}{"criterion": "likes"})
	if !result.IsError {
		t.Error("expected error for unknown criterion")
	}
}

func TestAddConnectionTool(t *testing.T) {
	srv, g := newTestServer(t)

	result := callTool(t, srv, "sociograph_add_connection", map[string]interface{}{"from": "C", "to": "D"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}
	_ = g.View(func(n *network.Network) error {
		if got := n.Index().Outgoing("C", "follows"); len(got) != 1 || got[0] != "D" {
			t.Errorf("C follows = %v", got)
		}
		return nil
	})

	// The new edge joins D to the first cluster.
	result = callTool(t, srv, "sociograph_clusters", map[string]interface{}{})
	var res cluster.Result
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Clusters) != 1 {
		t.Errorf("expected a single cluster after linking D, got %+v", res.Clusters)
	}

	result = callTool(t, srv, "sociograph_add_connection", map[string]interface{}{"from": "C", "to": "ghost"})
	if !result.IsError || !strings.Contains(getTextContent(t, result), "ghost") {
		t.Error("expected unknown user error")
	}
	result = callTool(t, srv, "sociograph_add_connection", map[string]interface{}{"from": "C"})
	if !result.IsError {
		t.Error("expected error for missing target")
	}
}

func TestRecordViewTool_PersistsToStore(t *testing.T) {
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	defer st.Close()

	g := network.NewGuarded(setupTestNetwork(t))
	srv := NewServer(ServerConfig{Network: g, Store: st})

	for i := 0; i < 2; i++ {
		result := callTool(t, srv, "sociograph_record_view", map[string]interface{}{"user_id": "D", "post_id": "P1"})
		if result.IsError {
			t.Fatalf("unexpected error: %s", getTextContent(t, result))
		}
		if !strings.Contains(getTextContent(t, result), `"views": 1`) {
			t.Errorf("call %d: %s", i+1, getTextContent(t, result))
		}
	}

	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.ViewCount != 1 || stats.UserCount != 4 {
		t.Errorf("stored stats = %+v", stats)
	}

	result := callTool(t, srv, "sociograph_record_view", map[string]interface{}{"user_id": "D", "post_id": "P9"})
	if !result.IsError {
		t.Error("expected unknown post error")
	}
}

// failingSaveStore serves loads from a real store but refuses every save.
type failingSaveStore struct {
	store.Store
}

func (failingSaveStore) SaveNetwork(context.Context, *network.Network) error {
	return errors.New("disk full")
}

func TestMutationsRolledBackWhenSaveFails(t *testing.T) {
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	defer st.Close()
	if err := st.SaveNetwork(context.Background(), setupTestNetwork(t)); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	g := network.NewGuarded(setupTestNetwork(t))
	srv := NewServer(ServerConfig{Network: g, Store: failingSaveStore{st}})

	for i := 0; i < 2; i++ {
		result := callTool(t, srv, "sociograph_add_connection", map[string]interface{}{"from": "C", "to": "D"})
		if !result.IsError || !strings.Contains(getTextContent(t, result), "disk full") {
			t.Fatalf("call %d: expected save error, got %s", i+1, getTextContent(t, result))
		}
	}
	result := callTool(t, srv, "sociograph_record_view", map[string]interface{}{"user_id": "D", "post_id": "P1"})
	if !result.IsError {
		t.Fatal("expected save error for record view")
	}

	_ = g.View(func(n *network.Network) error {
		c, _ := n.User("C")
		if got := c.Connections(); len(got) != 0 {
			t.Errorf("C connections after failed saves = %v", got)
		}
		p, _ := n.Post("P1")
		if p.Views() != 0 {
			t.Errorf("P1 views after failed save = %d", p.Views())
		}
		if n.Len() != 4 || n.PostCount() != 3 {
			t.Errorf("restored network has %d users, %d posts", n.Len(), n.PostCount())
		}
		return nil
	})

	// Model errors leave the network in place without touching the store.
	result = callTool(t, srv, "sociograph_add_connection", map[string]interface{}{"from": "C", "to": "ghost"})
	if !result.IsError || !strings.Contains(getTextContent(t, result), "ghost") {
		t.Errorf("expected unknown user error, got %s", getTextContent(t, result))
	}
	_ = g.View(func(n *network.Network) error {
		if n.Len() != 4 {
			t.Errorf("users after model error = %d", n.Len())
		}
		return nil
	})
}

func TestCriteria_RejectsFractionalAge(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tool := range []string{"sociograph_filter_posts", "sociograph_wordfreq", "sociograph_trending"} {
		result := callTool(t, srv, tool, map[string]interface{}{"age": 25.7})
		if !result.IsError || !strings.Contains(getTextContent(t, result), "not an integer") {
			t.Errorf("%s: expected age error, got %s", tool, getTextContent(t, result))
		}
	}

	result := callTool(t, srv, "sociograph_filter_posts", map[string]interface{}{"age": 25.0})
	if result.IsError {
		t.Errorf("integral age rejected: %s", getTextContent(t, result))
	}
}

func TestStatsResource(t *testing.T) {
	srv, _ := newTestServer(t)

	text := callResource(t, srv, "sociograph://stats")
	var payload struct {
		Network struct {
			Users           int      `json:"users"`
			Posts           int      `json:"posts"`
			ConnectionTypes []string `json:"connection_types"`
		} `json:"network"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if payload.Network.Users != 4 || payload.Network.Posts != 3 {
		t.Errorf("stats = %+v", payload.Network)
	}
	if len(payload.Network.ConnectionTypes) != 1 || payload.Network.ConnectionTypes[0] != "follows" {
		t.Errorf("connection types = %v", payload.Network.ConnectionTypes)
	}
}
