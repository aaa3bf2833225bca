package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	domain "github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "items"

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":                           {"type": "long"},
      "ownerId":                      {"type": "keyword"},
      "name":                         {"type": "text"},
      "description":                  {"type": "text"},
      "category":                     {"type": "keyword"},
      "imageUrl":                     {"type": "keyword", "index": false},
      "stock":                        {"type": "integer"},
      "price":                        {"type": "scaled_float", "scaling_factor": 10000},
      "originalPriceBeforeFlashSale": {"type": "scaled_float", "scaling_factor": 10000},
      "isFlashSaleActive":            {"type": "boolean"},
      "flashSaleEndTime":             {"type": "date"},
      "isDeleted":                    {"type": "boolean"}
    }
  }
}`

// ProjectionStore keeps item projections in an Elasticsearch index, one document per item id.
type ProjectionStore struct {
	client *elasticsearch.Client
	index  string
}

// NewClient builds an Elasticsearch client for the given node addresses.
func NewClient(addresses []string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("search: new client: %w", err)
	}
	return client, nil
}

func NewProjectionStore(client *elasticsearch.Client, index string) *ProjectionStore {
	if index == "" {
		index = DefaultIndex
	}
	return &ProjectionStore{client: client, index: index}
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (s *ProjectionStore) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("search: index exists: %w", err)
	}
	drain(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("search: create index: %w", err)
	}
	defer drain(res)
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("search: create index %s: status %d", s.index, res.StatusCode)
	}
	return nil
}

func (s *ProjectionStore) Upsert(ctx context.Context, p domain.Projection) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("search: encode projection %d: %w", p.ID, err)
	}
	res, err := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: strconv.FormatInt(p.ID, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("search: index %d: %w", p.ID, err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("search: index %d: status %d: %s", p.ID, res.StatusCode, readBody(res))
	}
	return nil
}

// Delete removes the projection; a missing document is not an error.
func (s *ProjectionStore) Delete(ctx context.Context, id int64) error {
	res, err := esapi.DeleteRequest{
		Index:      s.index,
		DocumentID: strconv.FormatInt(id, 10),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("search: delete %d: %w", id, err)
	}
	defer drain(res)
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("search: delete %d: status %d: %s", id, res.StatusCode, readBody(res))
	}
	return nil
}

func readBody(res *esapi.Response) string {
	if res == nil || res.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
