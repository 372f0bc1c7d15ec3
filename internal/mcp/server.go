// Package mcp provides a Model Context Protocol server for sociograph.
//
// It exposes clustering, post filtering, word frequencies and trending posts
// as read-only MCP tools, two mutation tools for connections and views, and
// network statistics as an MCP resource. Served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/sociograph/internal/cluster"
	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/metrics"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/report"
	"github.com/hurttlocker/sociograph/internal/store"
	"github.com/hurttlocker/sociograph/internal/wordfreq"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Network *network.Guarded
	// Store is optional. When set, every successful mutation is saved to it
	// before the tool returns.
	Store   store.Store
	Version string

	ConnectionType string
	ClusterMode    cluster.Mode
	Metrics        metrics.Recorder
}

// NewServer creates a configured MCP server with all sociograph tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Network == nil {
		cfg.Network = network.NewGuarded(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.ConnectionType == "" {
		cfg.ConnectionType = "follows"
	}

	s := server.NewMCPServer(
		"Sociograph",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerClustersTool(s, cfg)
	registerFilterPostsTool(s, cfg)
	registerWordFreqTool(s, cfg)
	registerTrendingTool(s, cfg)
	registerAddConnectionTool(s, cfg)
	registerRecordViewTool(s, cfg)

	registerStatsResource(s, cfg)
	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(cfg ServerConfig) error {
	return server.ServeStdio(NewServer(cfg))
}

// --- Shared parameters ---

func withCriteriaParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("include",
			mcp.Description("Comma-separated keywords; a post must contain at least one (case-insensitive substring). Empty = no restriction."),
		),
		mcp.WithString("exclude",
			mcp.Description("Comma-separated keywords; a post containing any of them is dropped. Exclusion wins over inclusion."),
		),
		mcp.WithString("name", mcp.Description("Only posts by users with exactly this name")),
		mcp.WithString("gender", mcp.Description("Only posts by users with exactly this gender")),
		mcp.WithNumber("age", mcp.Description("Only posts by users of exactly this age")),
		mcp.WithString("country", mcp.Description("Only posts by users in exactly this country")),
		mcp.WithString("region", mcp.Description("Only posts by users in exactly this region")),
	}
}

// criteriaFromRequest reads the shared filter parameters. A non-integral age
// is rejected rather than truncated.
func criteriaFromRequest(req mcp.CallToolRequest) (filter.Criteria, error) {
	var c filter.Criteria
	if v, err := req.RequireString("include"); err == nil {
		c.Include = filter.SplitKeywords(v)
	}
	if v, err := req.RequireString("exclude"); err == nil {
		c.Exclude = filter.SplitKeywords(v)
	}
	if v, err := req.RequireString("name"); err == nil && v != "" {
		c.UserAttributes.Name = network.String(v)
	}
	if v, err := req.RequireString("gender"); err == nil && v != "" {
		c.UserAttributes.Gender = network.String(v)
	}
	if v, err := req.RequireFloat("age"); err == nil {
		if v != math.Trunc(v) {
			return filter.Criteria{}, fmt.Errorf("age %v: not an integer", v)
		}
		c.UserAttributes.Age = network.Int(int(v))
	}
	if v, err := req.RequireString("country"); err == nil && v != "" {
		c.UserAttributes.Country = network.String(v)
	}
	if v, err := req.RequireString("region"); err == nil && v != "" {
		c.UserAttributes.Region = network.String(v)
	}
	return c, nil
}

func topFromRequest(req mcp.CallToolRequest, def int) int {
	if v, err := req.RequireFloat("top"); err == nil && v >= 0 {
		return int(v)
	}
	return def
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

// --- Read-only tools ---

func registerClustersTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("sociograph_clusters",
		mcp.WithDescription("Partition all users into clusters connected by one connection type. Every user appears in exactly one cluster; users with no edges of that type are singletons."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("type",
			mcp.Description(fmt.Sprintf("Connection type to cluster over (default: %s)", cfg.ConnectionType)),
		),
		mcp.WithString("mode",
			mcp.Description("directed follows outgoing edges only; undirected follows both directions"),
			mcp.Enum("directed", "undirected"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		connType := cfg.ConnectionType
		if v, err := req.RequireString("type"); err == nil && v != "" {
			connType = v
		}
		mode := cfg.ClusterMode
		if v, err := req.RequireString("mode"); err == nil && v != "" {
			m, err := cluster.ParseMode(v)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid mode: %v", err)), nil
			}
			mode = m
		}

		var res cluster.Result
		err := cfg.Network.View(func(n *network.Network) error {
			var err error
			res, err = cluster.Build(n.Index(), connType, cluster.Options{Mode: mode})
			return err
		})
		cfg.Metrics.RecordAnalysis("clusters", time.Since(start), len(res.Clusters), err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clustering error: %v", err)), nil
		}
		return jsonResult(res), nil
	})
}

func registerFilterPostsTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List posts whose author matches every given attribute and whose content passes the include/exclude keyword filters, in creation order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	}
	tool := mcp.NewTool("sociograph_filter_posts", append(opts, withCriteriaParams()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		c, err := criteriaFromRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var posts []report.PostSummary
		_ = cfg.Network.View(func(n *network.Network) error {
			posts = report.DescribePosts(filter.Posts(n, c))
			return nil
		})
		cfg.Metrics.RecordAnalysis("filter", time.Since(start), len(posts), nil)
		return jsonResult(map[string]interface{}{
			"count": len(posts),
			"posts": posts,
		}), nil
	})
}

func registerWordFreqTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Word frequencies over the filtered posts: lower-cased tokens with punctuation removed, highest count first. Feed this to a word-cloud renderer."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("top",
			mcp.Description("Return only the N most frequent words (default: 50, 0 = all)"),
		),
	}
	tool := mcp.NewTool("sociograph_wordfreq", append(opts, withCriteriaParams()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		c, err := criteriaFromRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		top := topFromRequest(req, 50)

		var freq wordfreq.Frequencies
		_ = cfg.Network.View(func(n *network.Network) error {
			freq = wordfreq.AggregateNetwork(n, c)
			return nil
		})
		words := freq.Top(top)
		cfg.Metrics.RecordAnalysis("wordfreq", time.Since(start), len(words), nil)
		return jsonResult(map[string]interface{}{
			"total_tokens":    freq.Total(),
			"distinct_tokens": len(freq),
			"words":           words,
		}), nil
	})
}

func registerTrendingTool(s *server.MCPServer, cfg ServerConfig) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Rank the filtered posts by engagement and include their most frequent words."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("criterion",
			mcp.Description("Importance score: views (default), comments, or combined"),
			mcp.Enum("views", "comments", "combined"),
		),
		mcp.WithNumber("top",
			mcp.Description("Maximum posts and words to return (default: 10, 0 = all)"),
		),
	}
	tool := mcp.NewTool("sociograph_trending", append(opts, withCriteriaParams()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		critStr, _ := req.RequireString("criterion")
		crit, err := report.ParseCriterion(critStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c, err := criteriaFromRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		top := topFromRequest(req, 10)

		var rep report.Report
		_ = cfg.Network.View(func(n *network.Network) error {
			rep = report.Build(n, c, crit, top)
			return nil
		})
		if top > 0 && len(rep.Posts) > top {
			rep.Posts = rep.Posts[:top]
		}
		cfg.Metrics.RecordAnalysis("trending", time.Since(start), len(rep.Posts), nil)
		return jsonResult(rep), nil
	})
}

// --- Mutations ---

// mutate applies fn under the write lock and saves the result when a store
// is configured. When the save fails the last saved snapshot is reloaded, so
// a reported error never leaves the change in memory.
func mutate(ctx context.Context, cfg ServerConfig, fn func(*network.Network) error) error {
	var saveFailed bool
	restore := func() (*network.Network, error) {
		if !saveFailed {
			return nil, nil
		}
		return cfg.Store.LoadNetwork(ctx)
	}
	if cfg.Store == nil {
		restore = nil
	}

	return cfg.Network.UpdateOrRestore(func(n *network.Network) error {
		if err := fn(n); err != nil {
			return err
		}
		if cfg.Store == nil {
			return nil
		}
		if err := cfg.Store.SaveNetwork(ctx, n); err != nil {
			saveFailed = true
			return fmt.Errorf("saving network: %w", err)
		}
		return nil
	}, restore)
}

func registerAddConnectionTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("sociograph_add_connection",
		mcp.WithDescription("Add a directed, typed connection from one existing user to another. Duplicate connections are allowed."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source user id")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target user id")),
		mcp.WithString("type",
			mcp.Description(fmt.Sprintf("Connection type (default: %s)", cfg.ConnectionType)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		from, err := req.RequireString("from")
		if err != nil || strings.TrimSpace(from) == "" {
			return mcp.NewToolResultError("from is required"), nil
		}
		to, err := req.RequireString("to")
		if err != nil || strings.TrimSpace(to) == "" {
			return mcp.NewToolResultError("to is required"), nil
		}
		connType := cfg.ConnectionType
		if v, err := req.RequireString("type"); err == nil && v != "" {
			connType = v
		}

		err = mutate(ctx, cfg, func(n *network.Network) error {
			return n.AddConnection(network.UserID(from), network.UserID(to), connType)
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("add connection error: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"added": network.Edge{From: network.UserID(from), To: network.UserID(to), Type: connType},
		}), nil
	})
}

func registerRecordViewTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("sociograph_record_view",
		mcp.WithDescription("Record that a user has seen a post. Recording the same view twice has no further effect."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Viewing user id")),
		mcp.WithString("post_id", mcp.Required(), mcp.Description("Viewed post id")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || strings.TrimSpace(userID) == "" {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		postID, err := req.RequireString("post_id")
		if err != nil || strings.TrimSpace(postID) == "" {
			return mcp.NewToolResultError("post_id is required"), nil
		}

		var views int
		err = mutate(ctx, cfg, func(n *network.Network) error {
			if err := n.RecordView(network.UserID(userID), network.PostID(postID)); err != nil {
				return err
			}
			p, _ := n.Post(network.PostID(postID))
			views = p.Views()
			return nil
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("record view error: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"post_id": postID,
			"views":   views,
		}), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, cfg ServerConfig) {
	resource := mcp.NewResource(
		"sociograph://stats",
		"Network Statistics",
		mcp.WithResourceDescription("User, post, connection, view and comment counts, connection types in use, and stored snapshot counts when a database is attached."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload := map[string]interface{}{}
		_ = cfg.Network.View(func(n *network.Network) error {
			payload["network"] = report.Stats(n)
			return nil
		})
		if cfg.Store != nil {
			st, err := cfg.Store.Stats(ctx)
			if err != nil {
				return nil, fmt.Errorf("getting store stats: %w", err)
			}
			payload["store"] = st
		}

		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
