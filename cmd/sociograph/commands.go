package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hurttlocker/sociograph/internal/cluster"
	"github.com/hurttlocker/sociograph/internal/config"
	"github.com/hurttlocker/sociograph/internal/dataset"
	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/graph"
	"github.com/hurttlocker/sociograph/internal/mcp"
	"github.com/hurttlocker/sociograph/internal/metrics"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/report"
	"github.com/hurttlocker/sociograph/internal/store"
	"github.com/hurttlocker/sociograph/internal/wordfreq"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// flagValue handles both "--name value" and "--name=value". It reports
// whether args[*i] was the flag and advances *i past a separate value.
func flagValue(args []string, i *int, name string) (string, bool, error) {
	arg := args[*i]
	if v, ok := strings.CutPrefix(arg, name+"="); ok {
		return v, true, nil
	}
	if arg != name {
		return "", false, nil
	}
	if *i+1 >= len(args) {
		return "", true, fmt.Errorf("%s requires a value", name)
	}
	*i++
	return args[*i], true, nil
}

func parseNonNegative(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

// criteriaFlags collects --include, --exclude and --attr.
type criteriaFlags struct {
	include []string
	exclude []string
	attrs   []string
}

// take consumes args[*i] if it is a criteria flag.
func (f *criteriaFlags) take(args []string, i *int) (bool, error) {
	if v, ok, err := flagValue(args, i, "--include"); ok || err != nil {
		f.include = append(f.include, filter.SplitKeywords(v)...)
		return true, err
	}
	if v, ok, err := flagValue(args, i, "--exclude"); ok || err != nil {
		f.exclude = append(f.exclude, filter.SplitKeywords(v)...)
		return true, err
	}
	if v, ok, err := flagValue(args, i, "--attr"); ok || err != nil {
		f.attrs = append(f.attrs, v)
		return true, err
	}
	return false, nil
}

func (f *criteriaFlags) criteria() (filter.Criteria, error) {
	attrs, err := filter.ParseAttributePairs(f.attrs)
	if err != nil {
		return filter.Criteria{}, err
	}
	return filter.Criteria{UserAttributes: attrs, Include: f.include, Exclude: f.exclude}, nil
}

func runImport(args []string) error {
	var path string
	opts := dataset.Options{}
	for _, arg := range args {
		switch {
		case arg == "--sanitize-html":
			opts.SanitizeHTML = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		case path == "":
			path = arg
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if path == "" {
		return fmt.Errorf("usage: sociograph import <file> [--sanitize-html]")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("dataset %s: %w", path, err)
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, err := dataset.Load(path, opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SaveNetwork(context.Background(), n); err != nil {
		return err
	}
	stats := report.Stats(n)
	if globalJSON {
		return printJSON(stats)
	}
	fmt.Fprintf(stdout, "Imported %s: %d users, %d connections, %d posts\n", path, stats.Users, stats.Connections, stats.Posts)
	return nil
}

func runExport(args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: sociograph export <file.json|file.yaml>")
	}
	path := args[0]
	if _, err := dataset.FormatForPath(path); err != nil {
		return err
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}
	if err := dataset.Save(path, n); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %d users and %d posts to %s\n", n.Len(), n.PostCount(), path)
	return nil
}

func runClusters(args []string) error {
	var connType, mode string
	for i := 0; i < len(args); i++ {
		if v, ok, err := flagValue(args, &i, "--type"); ok || err != nil {
			if err != nil {
				return err
			}
			connType = v
			continue
		}
		switch args[i] {
		case "--undirected":
			mode = cluster.Undirected.String()
		case "--directed":
			mode = cluster.Directed.String()
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, err := resolveConfig(config.ResolveOptions{CLIConnectionType: connType, CLIClusterMode: mode})
	if err != nil {
		return err
	}
	m, err := cluster.ParseMode(cfg.ClusterMode.Value)
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	res, err := cluster.Build(n.Index(), cfg.ConnectionType.Value, cluster.Options{Mode: m})
	if err != nil {
		return err
	}
	if globalJSON {
		return printJSON(res)
	}

	fmt.Fprintf(stdout, "%d clusters over %q connections (%s), %d users, %d singletons\n",
		len(res.Clusters), res.ConnectionType, res.Mode, res.TotalUsers, res.Singletons)
	for i, c := range res.Clusters {
		ids := make([]string, len(c.Members))
		for j, id := range c.Members {
			ids[j] = string(id)
		}
		fmt.Fprintf(stdout, "  [%d] size=%d edges=%d cohesion=%.2f  %s\n",
			i+1, c.Size(), c.Edges, c.Cohesion, strings.Join(ids, ", "))
	}
	return nil
}

func runFilter(args []string) error {
	var cf criteriaFlags
	for i := 0; i < len(args); i++ {
		ok, err := cf.take(args, &i)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	c, err := cf.criteria()
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	posts := report.DescribePosts(filter.Posts(n, c))
	if globalJSON {
		return printJSON(posts)
	}
	if len(posts) == 0 {
		fmt.Fprintln(stdout, "No posts matched.")
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(stdout, "%s  @%s  %s\n", p.ID, p.Creator, p.Content)
	}
	fmt.Fprintf(stdout, "\n%d posts\n", len(posts))
	return nil
}

func runWordFreq(args []string) error {
	var cf criteriaFlags
	top := 20
	for i := 0; i < len(args); i++ {
		if v, ok, err := flagValue(args, &i, "--top"); ok || err != nil {
			if err != nil {
				return err
			}
			if top, err = parseNonNegative("--top", v); err != nil {
				return err
			}
			continue
		}
		ok, err := cf.take(args, &i)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	c, err := cf.criteria()
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	freq := wordfreq.AggregateNetwork(n, c)
	if globalJSON {
		return printJSON(map[string]interface{}{
			"total_tokens":    freq.Total(),
			"distinct_tokens": len(freq),
			"words":           freq.Top(top),
		})
	}
	if len(freq) == 0 {
		fmt.Fprintln(stdout, "No posts matched.")
		return nil
	}
	for _, e := range freq.Top(top) {
		fmt.Fprintf(stdout, "%6d  %s\n", e.Count, e.Token)
	}
	fmt.Fprintf(stdout, "\n%d tokens, %d distinct\n", freq.Total(), len(freq))
	return nil
}

func runTrending(args []string) error {
	var cf criteriaFlags
	top := 10
	criterion := ""
	for i := 0; i < len(args); i++ {
		if v, ok, err := flagValue(args, &i, "--top"); ok || err != nil {
			if err != nil {
				return err
			}
			if top, err = parseNonNegative("--top", v); err != nil {
				return err
			}
			continue
		}
		if v, ok, err := flagValue(args, &i, "--criterion"); ok || err != nil {
			if err != nil {
				return err
			}
			criterion = v
			continue
		}
		ok, err := cf.take(args, &i)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	crit, err := report.ParseCriterion(criterion)
	if err != nil {
		return err
	}
	c, err := cf.criteria()
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	rep := report.Build(n, c, crit, top)
	if top > 0 && len(rep.Posts) > top {
		rep.Posts = rep.Posts[:top]
	}
	if globalJSON {
		return printJSON(rep)
	}
	if len(rep.Posts) == 0 {
		fmt.Fprintln(stdout, "No posts matched.")
		return nil
	}
	fmt.Fprintf(stdout, "Top posts by %s (%d matched):\n", rep.Criterion, rep.MatchedPosts)
	for _, p := range rep.Posts {
		fmt.Fprintf(stdout, "  %2d. %s @%s  views=%d comments=%d score=%d\n      %s\n",
			p.Rank, p.ID, p.Creator, p.Views, p.Comments, p.Importance, p.Content)
	}
	if len(rep.TopWords) > 0 {
		words := make([]string, len(rep.TopWords))
		for i, w := range rep.TopWords {
			words[i] = fmt.Sprintf("%s(%d)", w.Token, w.Count)
		}
		fmt.Fprintf(stdout, "Top words: %s\n", strings.Join(words, " "))
	}
	return nil
}

func runUsers(args []string) error {
	var a filter.Activity
	for i := 0; i < len(args); i++ {
		var (
			v   string
			ok  bool
			err error
		)
		switch {
		case strings.HasPrefix(args[i], "--min-posts"):
			if v, ok, err = flagValue(args, &i, "--min-posts"); ok && err == nil {
				var n int
				if n, err = parseNonNegative("--min-posts", v); err == nil {
					a.MinPosts = &n
				}
			}
		case strings.HasPrefix(args[i], "--max-posts"):
			if v, ok, err = flagValue(args, &i, "--max-posts"); ok && err == nil {
				var n int
				if n, err = parseNonNegative("--max-posts", v); err == nil {
					a.MaxPosts = &n
				}
			}
		case strings.HasPrefix(args[i], "--gender"):
			v, ok, err = flagValue(args, &i, "--gender")
			a.Gender = v
		case strings.HasPrefix(args[i], "--country"):
			v, ok, err = flagValue(args, &i, "--country")
			a.Country = v
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	users := filter.ByActivity(n.Users(), a)
	return printUsers(n, users)
}

func runAudience(args []string) error {
	var (
		postID          string
		minAge, maxAge  *int
		country, region string
	)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "-") {
			if postID != "" {
				return fmt.Errorf("unexpected argument: %s", args[i])
			}
			postID = args[i]
			continue
		}
		var (
			v   string
			ok  bool
			err error
		)
		switch {
		case strings.HasPrefix(args[i], "--min-age"):
			if v, ok, err = flagValue(args, &i, "--min-age"); ok && err == nil {
				var n int
				if n, err = parseNonNegative("--min-age", v); err == nil {
					minAge = &n
				}
			}
		case strings.HasPrefix(args[i], "--max-age"):
			if v, ok, err = flagValue(args, &i, "--max-age"); ok && err == nil {
				var n int
				if n, err = parseNonNegative("--max-age", v); err == nil {
					maxAge = &n
				}
			}
		case strings.HasPrefix(args[i], "--country"):
			v, ok, err = flagValue(args, &i, "--country")
			country = v
		case strings.HasPrefix(args[i], "--region"):
			v, ok, err = flagValue(args, &i, "--region")
			region = v
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if postID == "" {
		return fmt.Errorf("usage: sociograph audience <post-id> [--min-age N --max-age N | --country C --region R]")
	}
	byAge := minAge != nil || maxAge != nil
	if byAge && (country != "" || region != "") {
		return fmt.Errorf("use either an age range or a location, not both")
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	var viewers []*network.User
	if byAge {
		lo, hi := 0, math.MaxInt
		if minAge != nil {
			lo = *minAge
		}
		if maxAge != nil {
			hi = *maxAge
		}
		viewers, err = n.SeenByAge(network.PostID(postID), lo, hi)
	} else {
		viewers, err = n.SeenByLocation(network.PostID(postID), country, region)
	}
	if err != nil {
		return err
	}
	return printUsers(n, viewers)
}

func printUsers(n *network.Network, users []*network.User) error {
	if globalJSON {
		out := make([]report.UserSummary, 0, len(users))
		for _, u := range users {
			if s, ok := report.DescribeUser(n, u.ID()); ok {
				out = append(out, s)
			}
		}
		return printJSON(out)
	}
	if len(users) == 0 {
		fmt.Fprintln(stdout, "No users matched.")
		return nil
	}
	for _, u := range users {
		a := u.Attributes()
		var parts []string
		if a.Name != nil {
			parts = append(parts, "name="+*a.Name)
		}
		if a.Gender != nil {
			parts = append(parts, "gender="+*a.Gender)
		}
		if a.Age != nil {
			parts = append(parts, "age="+strconv.Itoa(*a.Age))
		}
		if a.Country != nil {
			parts = append(parts, "country="+*a.Country)
		}
		if a.Region != nil {
			parts = append(parts, "region="+*a.Region)
		}
		fmt.Fprintf(stdout, "%s  posts=%d  %s\n", u.ID(), len(u.AuthoredPosts()), strings.Join(parts, " "))
	}
	fmt.Fprintf(stdout, "\n%d users\n", len(users))
	return nil
}

func runStats(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unknown flag: %s", args[0])
	}
	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	ctx := context.Background()
	n, s, err := loadNetwork(ctx, cfg)
	if err != nil {
		return err
	}
	var stored *store.StoreStats
	if s != nil {
		defer s.Close()
		if stored, err = s.Stats(ctx); err != nil {
			return err
		}
	}

	netStats := report.Stats(n)
	if globalJSON {
		return printJSON(map[string]interface{}{
			"network": netStats,
			"store":   stored,
			"config":  cfg,
		})
	}
	fmt.Fprintf(stdout, "Users:        %d\n", netStats.Users)
	fmt.Fprintf(stdout, "Connections:  %d (%s)\n", netStats.Connections, strings.Join(netStats.ConnectionTypes, ", "))
	fmt.Fprintf(stdout, "Posts:        %d\n", netStats.Posts)
	fmt.Fprintf(stdout, "Views:        %d\n", netStats.Views)
	fmt.Fprintf(stdout, "Comments:     %d\n", netStats.Comments)
	if stored != nil {
		fmt.Fprintf(stdout, "Database:     %s (%s)\n", cfg.DBPath.Value, formatBytes(stored.DBSizeBytes))
		if stored.SavedAt != nil {
			fmt.Fprintf(stdout, "Last saved:   %s\n", stored.SavedAt.Format("2006-01-02 15:04:05 MST"))
		}
	} else {
		fmt.Fprintf(stdout, "Dataset:      %s\n", cfg.Dataset.Value)
	}
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func runServe(args []string) error {
	var port string
	for i := 0; i < len(args); i++ {
		v, ok, err := flagValue(args, &i, "--port")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
		port = v
	}

	cfg, err := resolveConfig(config.ResolveOptions{CLIHTTPPort: port})
	if err != nil {
		return err
	}
	p, err := cfg.Port()
	if err != nil {
		return err
	}
	mode, err := cluster.ParseMode(cfg.ClusterMode.Value)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, s, err := loadNetwork(ctx, cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fmt.Fprintf(stdout, "sociograph API: http://localhost:%d/api/stats\n", p)
	return graph.Serve(ctx, graph.ServerConfig{
		Network:        network.NewGuarded(n),
		Store:          s,
		Port:           p,
		ConnectionType: cfg.ConnectionType.Value,
		ClusterMode:    mode,
		Metrics:        metrics.NewCollector(reg),
		Gatherer:       reg,
	})
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unknown flag: %s", args[0])
	}
	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	mode, err := cluster.ParseMode(cfg.ClusterMode.Value)
	if err != nil {
		return err
	}
	n, s, err := loadNetwork(context.Background(), cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	return mcp.ServeStdio(mcp.ServerConfig{
		Network:        network.NewGuarded(n),
		Store:          s,
		Version:        version,
		ConnectionType: cfg.ConnectionType.Value,
		ClusterMode:    mode,
	})
}
