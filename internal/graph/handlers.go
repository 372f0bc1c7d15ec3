package graph

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hurttlocker/sociograph/internal/cluster"
	"github.com/hurttlocker/sociograph/internal/filter"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/report"
	"github.com/hurttlocker/sociograph/internal/store"
	"github.com/hurttlocker/sociograph/internal/wordfreq"
)

const attrPrefix = "attr."

// badRequest marks errors caused by the query string.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// criteriaFromQuery reads include, exclude and attr.<name> parameters.
func criteriaFromQuery(q url.Values) (filter.Criteria, error) {
	raw := map[string]string{}
	for key, values := range q {
		if name, ok := strings.CutPrefix(key, attrPrefix); ok && len(values) > 0 {
			raw[name] = values[0]
		}
	}
	attrs, err := filter.ParseAttributes(raw)
	if err != nil {
		return filter.Criteria{}, badRequest{err}
	}
	return filter.Criteria{
		UserAttributes: attrs,
		Include:        filter.SplitKeywords(q.Get("include")),
		Exclude:        filter.SplitKeywords(q.Get("exclude")),
	}, nil
}

// intParam parses a non-negative integer parameter.
func intParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest{fmt.Errorf("%s must be a non-negative integer, got %q", name, v)}
	}
	return n, nil
}

// respond records the analysis and writes either the payload or the error.
func (s *server) respond(w http.ResponseWriter, kind string, start time.Time, size int, payload interface{}, err error) {
	s.cfg.Metrics.RecordAnalysis(kind, time.Since(start), size, err)
	if err == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}

	var br badRequest
	switch {
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, network.ErrUnknownUser), errors.Is(err, network.ErrUnknownPost):
		writeError(w, http.StatusNotFound, err)
	default:
		s.cfg.Logger.Error("analysis failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *server) handleClusters(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	connType := q.Get("type")
	if connType == "" {
		connType = s.cfg.ConnectionType
	}
	mode := s.cfg.ClusterMode
	if m := q.Get("mode"); m != "" {
		parsed, err := cluster.ParseMode(m)
		if err != nil {
			s.respond(w, "clusters", start, 0, nil, badRequest{err})
			return
		}
		mode = parsed
	}

	var res cluster.Result
	err := s.cfg.Network.View(func(n *network.Network) error {
		var err error
		res, err = cluster.Build(n.Index(), connType, cluster.Options{Mode: mode})
		return err
	})
	s.respond(w, "clusters", start, len(res.Clusters), res, err)
}

type postsResponse struct {
	Count int                  `json:"count"`
	Posts []report.PostSummary `json:"posts"`
}

func (s *server) handlePosts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := criteriaFromQuery(r.URL.Query())
	if err != nil {
		s.respond(w, "filter", start, 0, nil, err)
		return
	}

	var resp postsResponse
	_ = s.cfg.Network.View(func(n *network.Network) error {
		resp.Posts = report.DescribePosts(filter.Posts(n, c))
		return nil
	})
	resp.Count = len(resp.Posts)
	s.respond(w, "filter", start, resp.Count, resp, nil)
}

type wordFreqResponse struct {
	TotalTokens int              `json:"total_tokens"`
	Distinct    int              `json:"distinct_tokens"`
	Words       []wordfreq.Entry `json:"words"`
}

func (s *server) handleWordFreq(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	c, err := criteriaFromQuery(q)
	if err != nil {
		s.respond(w, "wordfreq", start, 0, nil, err)
		return
	}
	top, err := intParam(q, "top", 0)
	if err != nil {
		s.respond(w, "wordfreq", start, 0, nil, err)
		return
	}

	var freq wordfreq.Frequencies
	_ = s.cfg.Network.View(func(n *network.Network) error {
		freq = wordfreq.AggregateNetwork(n, c)
		return nil
	})
	resp := wordFreqResponse{
		TotalTokens: freq.Total(),
		Distinct:    len(freq),
		Words:       freq.Top(top),
	}
	s.respond(w, "wordfreq", start, len(resp.Words), resp, nil)
}

func (s *server) handleTrending(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	c, err := criteriaFromQuery(q)
	if err != nil {
		s.respond(w, "trending", start, 0, nil, err)
		return
	}
	crit, err := report.ParseCriterion(q.Get("criterion"))
	if err != nil {
		s.respond(w, "trending", start, 0, nil, badRequest{err})
		return
	}
	top, err := intParam(q, "top", 10)
	if err != nil {
		s.respond(w, "trending", start, 0, nil, err)
		return
	}

	var rep report.Report
	_ = s.cfg.Network.View(func(n *network.Network) error {
		rep = report.Build(n, c, crit, top)
		return nil
	})
	if top > 0 && len(rep.Posts) > top {
		rep.Posts = rep.Posts[:top]
	}
	s.respond(w, "trending", start, len(rep.Posts), rep, nil)
}

func (s *server) handleUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := network.UserID(chi.URLParam(r, "id"))

	var summary report.UserSummary
	err := s.cfg.Network.View(func(n *network.Network) error {
		var ok bool
		summary, ok = report.DescribeUser(n, id)
		if !ok {
			return &network.UnknownUserError{ID: id}
		}
		return nil
	})
	s.respond(w, "user", start, 1, summary, err)
}

type statsResponse struct {
	Network report.NetworkStats `json:"network"`
	Store   *store.StoreStats   `json:"store,omitempty"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var resp statsResponse
	_ = s.cfg.Network.View(func(n *network.Network) error {
		resp.Network = report.Stats(n)
		return nil
	})

	if s.cfg.Store != nil {
		st, err := s.cfg.Store.Stats(r.Context())
		if err != nil {
			s.respond(w, "stats", start, 0, nil, fmt.Errorf("reading store stats: %w", err))
			return
		}
		resp.Store = st
	}
	s.respond(w, "stats", start, 1, resp, nil)
}
