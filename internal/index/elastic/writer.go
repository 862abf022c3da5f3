// Package elastic implements crawler.IndexWriter against Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// appendIfAbsent appends params.value to the array under params.field and
// turns the update into a no-op when the value is already there.
const appendIfAbsent = `
def f = params.field;
def v = params.value;
def cur = ctx._source[f];
if (cur == null) {
  ctx._source[f] = [v];
} else if (cur instanceof List) {
  if (cur.contains(v)) { ctx.op = 'none'; } else { cur.add(v); }
} else if (cur == v) {
  ctx.op = 'none';
} else {
  ctx._source[f] = [cur, v];
}`

// Config captures connection settings for the cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Refresh is passed to bulk requests ("true", "false", "wait_for").
	Refresh string
	// RetryOnConflict bounds version-conflict retries of tag updates.
	RetryOnConflict int
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Writer writes documents and tags through the official client.
type Writer struct {
	client          *elasticsearch.Client
	refresh         string
	retryOnConflict int
	logger          *zap.Logger
}

// NewWriter builds a client for cfg.
func NewWriter(cfg Config, logger *zap.Logger) (*Writer, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch.addresses is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	retry := cfg.RetryOnConflict
	if retry <= 0 {
		retry = 3
	}
	return &Writer{
		client:          client,
		refresh:         cfg.Refresh,
		retryOnConflict: retry,
		logger:          logger.Named("elastic"),
	}, nil
}

// Ping checks that the cluster answers.
func (w *Writer) Ping(ctx context.Context) error {
	res, err := w.client.Ping(w.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("ping elasticsearch: %s", res.Status())
	}
	return nil
}

// IndexExists reports whether index exists.
func (w *Writer) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := w.client.Indices.Exists([]string{index}, w.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	defer closeBody(res)
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check index %s: %s", index, res.Status())
	}
}

// CreateIndex creates index with mapping as the request body.
func (w *Writer) CreateIndex(ctx context.Context, index string, mapping []byte) error {
	res, err := w.client.Indices.Create(index,
		w.client.Indices.Create.WithContext(ctx),
		w.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, errorReason(res))
	}
	w.logger.Info("index created", zap.String("index", index))
	return nil
}

// DeleteIndex drops index; a missing index is not an error.
func (w *Writer) DeleteIndex(ctx context.Context, index string) error {
	res, err := w.client.Indices.Delete([]string{index},
		w.client.Indices.Delete.WithContext(ctx),
		w.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", index, err)
	}
	defer closeBody(res)
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index %s: %s", index, errorReason(res))
	}
	w.logger.Info("index deleted", zap.String("index", index))
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkUpsert indexes docs, replacing any previous version by id. Item
// rejections are reported in the result, not as an error.
func (w *Writer) BulkUpsert(ctx context.Context, index string, docs []crawler.IndexedDocument) (crawler.BulkResult, error) {
	if len(docs) == 0 {
		return crawler.BulkResult{}, nil
	}
	body, err := encodeBulk(docs)
	if err != nil {
		return crawler.BulkResult{}, err
	}
	opts := []func(*esapi.BulkRequest){
		w.client.Bulk.WithContext(ctx),
		w.client.Bulk.WithIndex(index),
	}
	if w.refresh != "" {
		opts = append(opts, w.client.Bulk.WithRefresh(w.refresh))
	}
	res, err := w.client.Bulk(body, opts...)
	if err != nil {
		return crawler.BulkResult{}, fmt.Errorf("bulk %s: %w", index, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return crawler.BulkResult{}, fmt.Errorf("bulk %s: %s", index, errorReason(res))
	}
	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return crawler.BulkResult{}, fmt.Errorf("decode bulk response: %w", err)
	}
	var out crawler.BulkResult
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Error == nil && op.Status < 300 {
				out.Succeeded++
				continue
			}
			failure := crawler.BulkFailure{ID: op.ID, Status: op.Status}
			if op.Error != nil {
				failure.Reason = op.Error.Type + ": " + op.Error.Reason
			}
			out.Failures = append(out.Failures, failure)
		}
	}
	return out, nil
}

func encodeBulk(docs []crawler.IndexedDocument) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		if err := enc.Encode(map[string]any{"index": map[string]string{"_id": d.ID}}); err != nil {
			return nil, fmt.Errorf("encode bulk action %s: %w", d.ID, err)
		}
		if err := enc.Encode(d.Body); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", d.ID, err)
		}
	}
	return &buf, nil
}

type updateResponse struct {
	Result string `json:"result"`
}

// PartialUpdate runs the append-if-absent script against one document. There
// is no upsert, so a missing document reports UpdateTargetMissing.
func (w *Writer) PartialUpdate(ctx context.Context, index, id string, update crawler.AppendIfAbsent) (crawler.UpdateOutcome, error) {
	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": appendIfAbsent,
			"lang":   "painless",
			"params": map[string]string{"field": update.Field, "value": update.Value},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode update: %w", err)
	}
	res, err := w.client.Update(index, id, bytes.NewReader(body),
		w.client.Update.WithContext(ctx),
		w.client.Update.WithRetryOnConflict(w.retryOnConflict),
	)
	if err != nil {
		return "", fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		return crawler.UpdateTargetMissing, nil
	}
	if res.IsError() {
		return "", fmt.Errorf("update %s/%s: %s", index, id, errorReason(res))
	}
	var parsed updateResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode update response: %w", err)
	}
	if parsed.Result == "noop" {
		return crawler.UpdateUnchanged, nil
	}
	return crawler.UpdateApplied, nil
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func errorReason(res *esapi.Response) string {
	data, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return res.Status()
	}
	var parsed errorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Type != "" {
		return fmt.Sprintf("%s: %s: %s", res.Status(), parsed.Error.Type, parsed.Error.Reason)
	}
	return fmt.Sprintf("%s: %s", res.Status(), strings.TrimSpace(string(data)))
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
