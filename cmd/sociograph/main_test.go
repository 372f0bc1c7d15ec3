package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDataset = `{
  "users": [
    {"user_id": "A", "age": 25, "country": "USA", "connections": [{"type": "follows", "target": "B"}]},
    {"user_id": "B", "age": 30, "gender": "female", "country": "USA", "connections": [{"type": "follows", "target": "C"}]},
    {"user_id": "C", "age": 41, "country": "UK", "region": "London"},
    {"user_id": "D"}
  ],
  "posts": [
    {"id": "P1", "creator": "A", "content": "Social media trends are fascinating.", "seen_by": ["B", "C"]},
    {"id": "P2", "creator": "B", "content": "Technology is shaping the future of social media.", "comments": ["agreed"]},
    {"id": "P3", "creator": "A", "content": "The impact of technology on society is immense.", "seen_by": ["C"]}
  ]
}`

// setupCLI resets global flags, isolates config and env, and captures stdout.
func setupCLI(t *testing.T) (dir string, out *bytes.Buffer) {
	t.Helper()
	dir = t.TempDir()
	for _, key := range []string{
		"SOCIOGRAPH_DB", "SOCIOGRAPH_DATASET", "SOCIOGRAPH_CONNECTION_TYPE",
		"SOCIOGRAPH_CLUSTER_MODE", "SOCIOGRAPH_HTTP_PORT", "SOCIOGRAPH_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	globalDBPath = ""
	globalDataset = ""
	globalConfigPath = filepath.Join(dir, "config.yaml")
	globalLogLevel = "error"
	globalJSON = false

	out = &bytes.Buffer{}
	prev := stdout
	stdout = out
	t.Cleanup(func() {
		stdout = prev
		globalDBPath, globalDataset, globalConfigPath, globalLogLevel = "", "", "", ""
		globalJSON = false
	})
	return dir, out
}

func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "network.json")
	if err := os.WriteFile(path, []byte(testDataset), 0o644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	return path
}

func TestParseGlobalFlags(t *testing.T) {
	setupCLI(t)

	rest := parseGlobalFlags([]string{
		"--db", "/tmp/x.db", "--dataset=net.yaml", "clusters", "--json",
		"--type", "friend", "--log-level=debug", "--config", "c.yaml",
	})
	if globalDBPath != "/tmp/x.db" || globalDataset != "net.yaml" || globalConfigPath != "c.yaml" {
		t.Errorf("paths = %q %q %q", globalDBPath, globalDataset, globalConfigPath)
	}
	if globalLogLevel != "debug" || !globalJSON {
		t.Errorf("log level %q json %v", globalLogLevel, globalJSON)
	}
	if strings.Join(rest, " ") != "clusters --type friend" {
		t.Errorf("rest = %v", rest)
	}
}

func TestFlagValue(t *testing.T) {
	args := []string{"--top=5", "--top", "7", "--top"}

	i := 0
	v, ok, err := flagValue(args, &i, "--top")
	if v != "5" || !ok || err != nil || i != 0 {
		t.Errorf("inline: %q %v %v %d", v, ok, err, i)
	}
	i = 1
	v, ok, err = flagValue(args, &i, "--top")
	if v != "7" || !ok || err != nil || i != 2 {
		t.Errorf("separate: %q %v %v %d", v, ok, err, i)
	}
	i = 3
	if _, ok, err = flagValue(args, &i, "--top"); !ok || err == nil {
		t.Error("expected missing value error")
	}
	i = 0
	if _, ok, _ = flagValue(args, &i, "--criterion"); ok {
		t.Error("--criterion should not match --top")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	setupCLI(t)
	if err := run([]string{"frobnicate"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_Version(t *testing.T) {
	_, out := setupCLI(t)
	if err := run([]string{"version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestImportThenAnalyse(t *testing.T) {
	dir, out := setupCLI(t)
	data := writeDataset(t, dir)
	globalDBPath = filepath.Join(dir, "sociograph.db")

	if err := run([]string{"import", data}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "4 users, 2 connections, 3 posts") {
		t.Errorf("import output = %q", out.String())
	}

	out.Reset()
	globalJSON = true
	if err := run([]string{"clusters"}); err != nil {
		t.Fatalf("clusters: %v", err)
	}
	var res struct {
		Clusters []struct {
			Members []string `json:"members"`
		} `json:"clusters"`
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decoding clusters: %v\n%s", err, out.String())
	}
	if len(res.Clusters) != 2 || strings.Join(res.Clusters[0].Members, ",") != "A,B,C" {
		t.Errorf("clusters = %+v", res.Clusters)
	}

	out.Reset()
	if err := run([]string{"stats"}); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats struct {
		Network struct {
			Views    int `json:"views"`
			Comments int `json:"comments"`
		} `json:"network"`
		Store struct {
			Users int `json:"users"`
		} `json:"store"`
	}
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v\n%s", err, out.String())
	}
	if stats.Network.Views != 3 || stats.Network.Comments != 1 || stats.Store.Users != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestImport_Errors(t *testing.T) {
	dir, _ := setupCLI(t)
	globalDBPath = filepath.Join(dir, "sociograph.db")

	if err := run([]string{"import"}); err == nil {
		t.Error("expected usage error")
	}
	if err := run([]string{"import", filepath.Join(dir, "missing.json")}); err == nil {
		t.Error("expected missing file error")
	}
	if err := run([]string{"import", "x.json", "--bogus"}); err == nil {
		t.Error("expected unknown flag error")
	}
}

func TestExportRoundTrip(t *testing.T) {
	dir, _ := setupCLI(t)
	globalDataset = writeDataset(t, dir)

	target := filepath.Join(dir, "out", "network.yaml")
	if err := run([]string{"export", target}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "user_id: A") {
		t.Errorf("exported yaml:\n%s", data)
	}

	if err := run([]string{"export", filepath.Join(dir, "network.txt")}); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestFilterAndWordFreq_FromDataset(t *testing.T) {
	dir, out := setupCLI(t)
	globalDataset = writeDataset(t, dir)

	if err := run([]string{"filter", "--include", "social,technology", "--exclude=future", "--attr", "age=25"}); err != nil {
		t.Fatalf("filter: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "P1") || !strings.Contains(text, "P3") || strings.Contains(text, "P2") {
		t.Errorf("filter output = %q", text)
	}

	out.Reset()
	globalJSON = true
	if err := run([]string{"wordfreq", "--include", "social,technology", "--exclude", "future", "--attr", "age=25", "--top", "0"}); err != nil {
		t.Fatalf("wordfreq: %v", err)
	}
	var freq struct {
		TotalTokens int `json:"total_tokens"`
	}
	if err := json.Unmarshal(out.Bytes(), &freq); err != nil {
		t.Fatal(err)
	}
	if freq.TotalTokens != 13 {
		t.Errorf("total tokens = %d", freq.TotalTokens)
	}

	if err := run([]string{"wordfreq", "--attr", "height=2"}); err == nil {
		t.Error("expected unknown attribute error")
	}
	if err := run([]string{"wordfreq", "--top", "-3"}); err == nil {
		t.Error("expected invalid --top error")
	}
}

func TestTrending(t *testing.T) {
	dir, out := setupCLI(t)
	globalDataset = writeDataset(t, dir)
	globalJSON = true

	if err := run([]string{"trending", "--top", "1"}); err != nil {
		t.Fatalf("trending: %v", err)
	}
	var rep struct {
		Posts []struct {
			ID    string `json:"id"`
			Views int    `json:"views"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Posts) != 1 || rep.Posts[0].ID != "P1" || rep.Posts[0].Views != 2 {
		t.Errorf("trending = %+v", rep.Posts)
	}

	if err := run([]string{"trending", "--criterion", "likes"}); err == nil {
		t.Error("expected unknown criterion error")
	}
}

func TestUsersAndAudience(t *testing.T) {
	dir, out := setupCLI(t)
	globalDataset = writeDataset(t, dir)

	if err := run([]string{"users", "--min-posts", "1", "--country", "USA"}); err != nil {
		t.Fatalf("users: %v", err)
	}
	if text := out.String(); !strings.Contains(text, "A  posts=2") || !strings.Contains(text, "B  posts=1") || !strings.Contains(text, "2 users") {
		t.Errorf("users output = %q", text)
	}

	out.Reset()
	if err := run([]string{"audience", "P1", "--min-age", "26"}); err != nil {
		t.Fatalf("audience by age: %v", err)
	}
	if text := out.String(); !strings.Contains(text, "B  ") || !strings.Contains(text, "C  ") {
		t.Errorf("audience output = %q", text)
	}

	out.Reset()
	if err := run([]string{"audience", "P1", "--country", "UK", "--region", "London"}); err != nil {
		t.Fatalf("audience by location: %v", err)
	}
	if text := out.String(); !strings.Contains(text, "C  ") || strings.Contains(text, "B  ") {
		t.Errorf("audience output = %q", text)
	}

	if err := run([]string{"audience", "P9", "--min-age", "1"}); err == nil {
		t.Error("expected unknown post error")
	}
	if err := run([]string{"audience", "P1", "--min-age", "1", "--country", "UK"}); err == nil {
		t.Error("expected error mixing age and location")
	}
}
