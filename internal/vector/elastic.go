package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/matching"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "collab-profiles"

var ErrSearchFailed = errors.New("elasticsearch request failed")

type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// NewElasticClient builds a client; basic auth is used only when a username is set.
func NewElasticClient(cfg ElasticConfig) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

// Elastic is a kNN index over profile documents with a cosine dense_vector.
type Elastic struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

func NewElastic(client *elasticsearch.Client, index string, dims int) *Elastic {
	if index == "" {
		index = DefaultIndex
	}
	return &Elastic{client: client, index: index, dims: dims}
}

type profileDoc struct {
	UserID              string                      `json:"user_id"`
	Name                string                      `json:"name"`
	Skills              []string                    `json:"skills"`
	Interests           []string                    `json:"interests"`
	Expertise           []string                    `json:"expertise"`
	Location            string                      `json:"location"`
	OpenToCollaboration bool                        `json:"open_to_collaboration"`
	Collaboration       collab.CollaborationProfile `json:"collaboration_profile"`
	Embedding           []float32                   `json:"profile_embedding,omitempty"`
	EmbeddedAt          *time.Time                  `json:"embedding_updated_at,omitempty"`
}

// EnsureIndex creates the index with its vector mapping when it is missing.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("%w: exists: %w", ErrSearchFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"user_id":               map[string]any{"type": "keyword"},
				"name":                  map[string]any{"type": "text"},
				"skills":                map[string]any{"type": "keyword"},
				"location":              map[string]any{"type": "text"},
				"open_to_collaboration": map[string]any{"type": "boolean"},
				"embedding_updated_at":  map[string]any{"type": "date"},
				"profile_embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       e.dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err = esapi.IndicesCreateRequest{Index: e.index, Body: bytes.NewReader(body)}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("%w: create index: %w", ErrSearchFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: create index: %s", ErrSearchFailed, res.String())
	}
	return nil
}

// IndexProfile upserts the profile document keyed by user id.
func (e *Elastic) IndexProfile(ctx context.Context, u *collab.UserProfile, embedding []float32, at time.Time) error {
	stamp := at.UTC()
	doc := profileDoc{
		UserID:              u.ID,
		Name:                u.Name,
		Skills:              u.Skills,
		Interests:           u.Interests,
		Expertise:           u.Expertise,
		Location:            u.Location,
		OpenToCollaboration: u.OpenToCollaboration,
		Collaboration:       u.CollaborationProfile,
		Embedding:           embedding,
		EmbeddedAt:          &stamp,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: u.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("%w: index %s: %w", ErrSearchFailed, u.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: index %s: %s", ErrSearchFailed, u.ID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64    `json:"_score"`
			Source profileDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs an approximate kNN query. Elasticsearch reports cosine
// similarity as (1+cos)/2, which is converted back to a cosine distance.
func (e *Elastic) Search(ctx context.Context, vec []float32, q matching.SearchQuery) ([]matching.Candidate, error) {
	body, err := json.Marshal(knnQuery(vec, q))
	if err != nil {
		return nil, err
	}

	res, err := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrSearchFailed, res.Status(), msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]matching.Candidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		src := hit.Source
		out = append(out, matching.Candidate{
			User: &collab.UserProfile{
				ID:                   src.UserID,
				Name:                 src.Name,
				Skills:               src.Skills,
				Interests:            src.Interests,
				Expertise:            src.Expertise,
				Location:             src.Location,
				OpenToCollaboration:  src.OpenToCollaboration,
				CollaborationProfile: src.Collaboration,
				EmbeddingUpdatedAt:   src.EmbeddedAt,
			},
			Distance: ScoreToDistance(hit.Score),
		})
	}
	return out, nil
}

func knnQuery(vec []float32, q matching.SearchQuery) map[string]any {
	knn := map[string]any{
		"field":          "profile_embedding",
		"query_vector":   vec,
		"k":              q.Limit,
		"num_candidates": max(q.NumCandidates, q.Limit),
		"filter": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"open_to_collaboration": true}},
				},
				"must_not": []any{
					map[string]any{"term": map[string]any{"user_id": q.ExcludeUserID}},
				},
			},
		},
	}
	return map[string]any{
		"knn":     knn,
		"size":    q.Limit,
		"_source": map[string]any{"excludes": []string{"profile_embedding"}},
	}
}

// ScoreToDistance inverts the cosine _score transform.
func ScoreToDistance(score float64) float64 {
	return 1 - (2*score - 1)
}
