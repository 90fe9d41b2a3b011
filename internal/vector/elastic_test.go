package vector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/matching"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newElasticServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Elastic, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{method: r.Method, path: r.URL.Path}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		requests = append(requests, rec)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewElasticClient(ElasticConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElastic(client, "profiles", 3), &requests
}

func TestElasticSearchBuildsKNNQuery(t *testing.T) {
	es, requests := newElasticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_score":0.95,"_source":{"user_id":"u1","name":"Ann","skills":["Figma"],"open_to_collaboration":true}},
			{"_score":0.5,"_source":{"user_id":"u2","name":"Bob","open_to_collaboration":true}}
		]}}`)
	})

	hits, err := es.Search(context.Background(), []float32{0.1, 0.2, 0.3}, matching.SearchQuery{
		ExcludeUserID: "creator",
		Limit:         100,
		NumCandidates: 200,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Ann", hits[0].User.Name)
	assert.InDelta(t, 0.1, hits[0].Distance, 1e-9)
	assert.InDelta(t, 1.0, hits[1].Distance, 1e-9)

	req := (*requests)[0]
	assert.Equal(t, "/profiles/_search", req.path)
	knn := req.body["knn"].(map[string]any)
	assert.Equal(t, "profile_embedding", knn["field"])
	assert.EqualValues(t, 100, knn["k"])
	assert.EqualValues(t, 200, knn["num_candidates"])

	filter, _ := json.Marshal(knn["filter"])
	assert.Contains(t, string(filter), `"open_to_collaboration":true`)
	assert.Contains(t, string(filter), `"user_id":"creator"`)

	source, _ := json.Marshal(req.body["_source"])
	assert.Contains(t, string(source), "profile_embedding")
}

func TestElasticSearchReportsBackendErrors(t *testing.T) {
	es, _ := newElasticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"illegal_argument_exception"}}`)
	})

	_, err := es.Search(context.Background(), []float32{1, 0, 0}, matching.SearchQuery{Limit: 5})
	require.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "illegal_argument_exception")
}

func TestElasticEnsureIndexCreatesMapping(t *testing.T) {
	es, requests := newElasticServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	})

	require.NoError(t, es.EnsureIndex(context.Background()))
	require.Len(t, *requests, 2)

	create := (*requests)[1]
	assert.Equal(t, http.MethodPut, create.method)
	mapping, _ := json.Marshal(create.body)
	assert.Contains(t, string(mapping), `"similarity":"cosine"`)
	assert.Contains(t, string(mapping), `"dims":3`)
}

func TestElasticEnsureIndexSkipsExisting(t *testing.T) {
	es, requests := newElasticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, es.EnsureIndex(context.Background()))
	assert.Len(t, *requests, 1)
}

func TestElasticIndexProfile(t *testing.T) {
	es, requests := newElasticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	u := &collab.UserProfile{ID: "u1", Name: "Ann", OpenToCollaboration: true}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, es.IndexProfile(context.Background(), u, []float32{1, 0, 0}, at))

	req := (*requests)[0]
	assert.True(t, strings.HasSuffix(req.path, "/_doc/u1"))
	assert.Equal(t, "u1", req.body["user_id"])
	assert.Len(t, req.body["profile_embedding"], 3)
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0, ScoreToDistance(1), 1e-9)
	assert.InDelta(t, 1, ScoreToDistance(0.5), 1e-9)
	assert.InDelta(t, 2, ScoreToDistance(0), 1e-9)
}
