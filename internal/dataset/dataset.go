// Package dataset reads and writes a whole network as a single JSON or YAML
// document with a "users" list and a "posts" list.
//
// Loading replays the document through the network API (users, then
// connections, then posts in document order, then views and comments), so a
// document that references unknown users or posts fails with the model's own
// errors instead of producing an inconsistent graph.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/sociograph/internal/network"
)

// Format is a dataset serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks a format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q (use .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// File is the on-disk document.
type File struct {
	Users []UserRecord `json:"users" yaml:"users"`
	Posts []PostRecord `json:"posts" yaml:"posts"`
}

// UserRecord is one user with its outgoing connections.
type UserRecord struct {
	ID                 string `json:"user_id" yaml:"user_id"`
	network.Attributes `yaml:",inline"`
	Connections        []ConnectionRecord `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// ConnectionRecord is one outgoing edge.
type ConnectionRecord struct {
	Type   string `json:"type" yaml:"type"`
	Target string `json:"target" yaml:"target"`
}

// PostRecord is one post with its views and comments.
type PostRecord struct {
	ID           string     `json:"id,omitempty" yaml:"id,omitempty"`
	Creator      string     `json:"creator" yaml:"creator"`
	Content      string     `json:"content" yaml:"content"`
	RespondingTo string     `json:"responding_to,omitempty" yaml:"responding_to,omitempty"`
	TimeAndDate  *time.Time `json:"time_and_date,omitempty" yaml:"time_and_date,omitempty"`
	SeenBy       []string   `json:"seen_by,omitempty" yaml:"seen_by,omitempty"`
	Comments     []string   `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// Options tunes Build and Load.
type Options struct {
	// SanitizeHTML strips markup from post content and comments.
	SanitizeHTML bool
}

// Build replays the document into a new network.
func (f File) Build(opts Options) (*network.Network, error) {
	n := network.New()

	var policy *bluemonday.Policy
	if opts.SanitizeHTML {
		policy = bluemonday.StrictPolicy()
	}
	text := func(s string) string {
		if policy == nil {
			return s
		}
		return strings.TrimSpace(policy.Sanitize(s))
	}

	for i, u := range f.Users {
		if strings.TrimSpace(u.ID) == "" {
			return nil, fmt.Errorf("users[%d]: missing user_id", i)
		}
		n.AddUser(network.UserID(u.ID), u.Attributes)
	}
	for _, u := range f.Users {
		for _, c := range u.Connections {
			if err := n.AddConnection(network.UserID(u.ID), network.UserID(c.Target), c.Type); err != nil {
				return nil, fmt.Errorf("user %q connection %q: %w", u.ID, c.Type, err)
			}
		}
	}

	ids := make([]network.PostID, len(f.Posts))
	for i, p := range f.Posts {
		post, err := n.AddPost(network.PostInput{
			ID:           network.PostID(p.ID),
			Creator:      network.UserID(p.Creator),
			Content:      text(p.Content),
			RespondingTo: network.PostID(p.RespondingTo),
			TimeAndDate:  p.TimeAndDate,
		})
		if err != nil {
			return nil, fmt.Errorf("posts[%d]: %w", i, err)
		}
		ids[i] = post.ID()
	}
	for i, p := range f.Posts {
		for _, viewer := range p.SeenBy {
			if err := n.RecordView(network.UserID(viewer), ids[i]); err != nil {
				return nil, fmt.Errorf("posts[%d] seen_by: %w", i, err)
			}
		}
		for _, c := range p.Comments {
			if err := n.AddComment(ids[i], text(c)); err != nil {
				return nil, fmt.Errorf("posts[%d] comments: %w", i, err)
			}
		}
	}
	return n, nil
}

// FromNetwork captures n as a document. Posts are written in creation order,
// so replies always follow the post they answer.
func FromNetwork(n *network.Network) File {
	f := File{
		Users: make([]UserRecord, 0, n.Len()),
		Posts: make([]PostRecord, 0, n.PostCount()),
	}
	for _, u := range n.Users() {
		rec := UserRecord{ID: string(u.ID()), Attributes: u.Attributes()}
		for _, c := range u.Connections() {
			rec.Connections = append(rec.Connections, ConnectionRecord{Type: c.Type, Target: string(c.Target)})
		}
		f.Users = append(f.Users, rec)
	}
	for _, p := range n.Posts() {
		rec := PostRecord{
			ID:           string(p.ID()),
			Creator:      string(p.Creator()),
			Content:      p.Content(),
			RespondingTo: string(p.RespondingTo()),
			TimeAndDate:  p.TimeAndDate(),
		}
		for _, v := range p.SeenBy() {
			rec.SeenBy = append(rec.SeenBy, string(v))
		}
		if comments := p.Comments(); len(comments) > 0 {
			rec.Comments = comments
		}
		f.Posts = append(f.Posts, rec)
	}
	return f
}

// Decode parses a document.
func Decode(data []byte, format Format) (File, error) {
	var f File
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("invalid JSON dataset: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("invalid YAML dataset: %w", err)
		}
	default:
		return File{}, fmt.Errorf("unsupported dataset format %q", format)
	}
	return f, nil
}

// Encode serializes a document.
func Encode(f File, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encoding YAML dataset: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

// Load reads the dataset at path. A missing file yields an empty network.
func Load(path string, opts Options) (*network.Network, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return network.New(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return network.New(), nil
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n, err := f.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Save writes n to path in the format implied by its extension, creating
// parent directories as needed.
func Save(path string, n *network.Network) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(FromNetwork(n), format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating dataset directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
