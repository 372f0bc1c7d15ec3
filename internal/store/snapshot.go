package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hurttlocker/sociograph/internal/network"
)

// SaveNetwork replaces the stored snapshot with n in a single transaction.
func (s *SQLiteStore) SaveNetwork(ctx context.Context, n *network.Network) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"post_comments", "post_views", "posts", "connections", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	users := n.Users()
	for i, u := range users {
		a := u.Attributes()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, position, name, gender, age, country, region) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(u.ID()), i, nullString(a.Name), nullString(a.Gender), nullInt(a.Age),
			nullString(a.Country), nullString(a.Region),
		)
		if err != nil {
			return fmt.Errorf("saving user %q: %w", u.ID(), err)
		}
	}
	for _, u := range users {
		for i, c := range u.Connections() {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO connections (user_id, position, type, target) VALUES (?, ?, ?, ?)`,
				string(u.ID()), i, c.Type, string(c.Target),
			)
			if err != nil {
				return fmt.Errorf("saving connection %q -> %q: %w", u.ID(), c.Target, err)
			}
		}
	}

	for i, p := range n.Posts() {
		var respondingTo sql.NullString
		if p.RespondingTo() != "" {
			respondingTo = sql.NullString{String: string(p.RespondingTo()), Valid: true}
		}
		var when sql.NullString
		if t := p.TimeAndDate(); t != nil {
			when = sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO posts (id, position, creator, content, responding_to, time_and_date) VALUES (?, ?, ?, ?, ?, ?)`,
			string(p.ID()), i, string(p.Creator()), p.Content(), respondingTo, when,
		)
		if err != nil {
			return fmt.Errorf("saving post %q: %w", p.ID(), err)
		}
		for j, viewer := range p.SeenBy() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO post_views (post_id, position, user_id) VALUES (?, ?, ?)`,
				string(p.ID()), j, string(viewer),
			); err != nil {
				return fmt.Errorf("saving view of %q by %q: %w", p.ID(), viewer, err)
			}
		}
		for j, body := range p.Comments() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO post_comments (post_id, position, body) VALUES (?, ?, ?)`,
				string(p.ID()), j, body,
			); err != nil {
				return fmt.Errorf("saving comment on %q: %w", p.ID(), err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		metaSavedAt, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("recording save time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

type storedUser struct {
	id    string
	attrs network.Attributes
}

type storedPair struct {
	owner, value string
}

// LoadNetwork rebuilds the stored snapshot. An empty store yields an empty
// network.
func (s *SQLiteStore) LoadNetwork(ctx context.Context) (*network.Network, error) {
	// All rows are read before replaying, since an in-memory database holds a
	// single connection.
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	conns, err := s.loadConnections(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.loadPosts(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.loadPairs(ctx, `SELECT v.post_id, v.user_id FROM post_views v JOIN posts p ON p.id = v.post_id ORDER BY p.position, v.position`)
	if err != nil {
		return nil, fmt.Errorf("loading views: %w", err)
	}
	comments, err := s.loadPairs(ctx, `SELECT c.post_id, c.body FROM post_comments c JOIN posts p ON p.id = c.post_id ORDER BY p.position, c.position`)
	if err != nil {
		return nil, fmt.Errorf("loading comments: %w", err)
	}

	n := network.New()
	for _, u := range users {
		n.AddUser(network.UserID(u.id), u.attrs)
	}
	for _, e := range conns {
		if err := n.AddConnection(e.From, e.To, e.Type); err != nil {
			return nil, fmt.Errorf("replaying connection: %w", err)
		}
	}
	for _, p := range posts {
		if _, err := n.AddPost(p); err != nil {
			return nil, fmt.Errorf("replaying post %q: %w", p.ID, err)
		}
	}
	for _, v := range views {
		if err := n.RecordView(network.UserID(v.value), network.PostID(v.owner)); err != nil {
			return nil, fmt.Errorf("replaying view: %w", err)
		}
	}
	for _, c := range comments {
		if err := n.AddComment(network.PostID(c.owner), c.value); err != nil {
			return nil, fmt.Errorf("replaying comment: %w", err)
		}
	}
	return n, nil
}

func (s *SQLiteStore) loadUsers(ctx context.Context) ([]storedUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, gender, age, country, region FROM users ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	defer rows.Close()

	var out []storedUser
	for rows.Next() {
		var (
			id                            string
			name, gender, country, region sql.NullString
			age                           sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &gender, &age, &country, &region); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, storedUser{id: id, attrs: network.Attributes{
			Name:    fromNullString(name),
			Gender:  fromNullString(gender),
			Age:     fromNullInt(age),
			Country: fromNullString(country),
			Region:  fromNullString(region),
		}})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadPosts(ctx context.Context) ([]network.PostInput, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, creator, content, responding_to, time_and_date FROM posts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("loading posts: %w", err)
	}
	defer rows.Close()

	var out []network.PostInput
	for rows.Next() {
		var (
			id, creator, content string
			respondingTo, when   sql.NullString
		)
		if err := rows.Scan(&id, &creator, &content, &respondingTo, &when); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		in := network.PostInput{
			ID:           network.PostID(id),
			Creator:      network.UserID(creator),
			Content:      content,
			RespondingTo: network.PostID(respondingTo.String),
		}
		if when.Valid && when.String != "" {
			t, err := time.Parse(time.RFC3339Nano, when.String)
			if err != nil {
				return nil, fmt.Errorf("post %q has invalid time %q: %w", id, when.String, err)
			}
			in.TimeAndDate = &t
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadPairs(ctx context.Context, query string) ([]storedPair, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedPair
	for rows.Next() {
		var p storedPair
		if err := rows.Scan(&p.owner, &p.value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadConnections(ctx context.Context) ([]network.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, type, target FROM connections ORDER BY user_id, position`)
	if err != nil {
		return nil, fmt.Errorf("loading connections: %w", err)
	}
	defer rows.Close()

	var out []network.Edge
	for rows.Next() {
		var from, connType, to string
		if err := rows.Scan(&from, &connType, &to); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		out = append(out, network.Edge{From: network.UserID(from), To: network.UserID(to), Type: connType})
	}
	return out, rows.Err()
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return network.String(v.String)
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return network.Int(int(v.Int64))
}
