package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Payment event types
const (
	EventTokenRequest = "token_request"
	EventCallback     = "callback"
)

// ErrLoggingDisabled is returned by queries when OpenSearch logging is off
var ErrLoggingDisabled = errors.New("logging is disabled")

// PaymentEvent is one token request or callback notification
type PaymentEvent struct {
	Timestamp        time.Time `json:"timestamp"`
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Provider         string    `json:"provider"`
	MerchantID       string    `json:"merchant_id,omitempty"`
	MerchantOid      string    `json:"merchant_oid,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	ClientIP         string    `json:"client_ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	Amount           int64     `json:"amount,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	Status           string    `json:"status,omitempty"`
	Success          bool      `json:"success"`
	FailureKind      string    `json:"failure_kind,omitempty"`
	Message          string    `json:"message,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	TestMode         bool      `json:"test_mode"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogPaymentEvent indexes a payment event
func (l *Logger) LogPaymentEvent(ctx context.Context, event PaymentEvent) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Provider == "" {
		event.Provider = "paytr"
	}

	return l.index(ctx, l.client.GetEventIndexName(event.Provider), event)
}

// LogSystemEvent indexes a system log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	return l.index(ctx, systemLogsIndex, entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchEvents returns the newest payment events matching query
func (l *Logger) SearchEvents(ctx context.Context, provider string, query map[string]any, size int) ([]PaymentEvent, error) {
	if !l.client.IsEnabled() {
		return nil, ErrLoggingDisabled
	}
	if size <= 0 || size > 1000 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source PaymentEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := l.search(ctx, l.client.GetEventIndexName(provider), searchQuery, &searchResult); err != nil {
		return nil, err
	}

	events := make([]PaymentEvent, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}

	return events, nil
}

// GetEventsByOrder returns every event recorded for a merchant order id
func (l *Logger) GetEventsByOrder(ctx context.Context, provider, merchantOid string) ([]PaymentEvent, error) {
	query := map[string]any{
		"term": map[string]any{
			"merchant_oid": merchantOid,
		},
	}

	return l.SearchEvents(ctx, provider, query, 100)
}

// GetRecentFailures returns unsuccessful events of the last hours
func (l *Logger) GetRecentFailures(ctx context.Context, provider string, hours int) ([]PaymentEvent, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
				{"term": map[string]any{"success": false}},
			},
		},
	}

	return l.SearchEvents(ctx, provider, query, 100)
}

// GetProviderStats aggregates the events of the last hours
func (l *Logger) GetProviderStats(ctx context.Context, provider string, hours int) (map[string]any, error) {
	if !l.client.IsEnabled() {
		return nil, ErrLoggingDisabled
	}

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
		"aggs": map[string]any{
			"event_types": map[string]any{
				"terms": map[string]any{"field": "event_type", "size": 10},
			},
			"success_count": map[string]any{
				"filter": map[string]any{"term": map[string]any{"success": true}},
			},
			"failure_kinds": map[string]any{
				"terms": map[string]any{"field": "failure_kind", "size": 10},
			},
			"avg_processing_time": map[string]any{
				"avg": map[string]any{"field": "processing_time_ms"},
			},
			"total_amount": map[string]any{
				"sum": map[string]any{"field": "amount"},
			},
		},
		"size": 0,
	}

	var result map[string]any
	if err := l.search(ctx, l.client.GetEventIndexName(provider), aggQuery, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (l *Logger) search(ctx context.Context, indexName string, query map[string]any, out any) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch search error: %s", res.String())
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode search results: %w", err)
	}

	return nil
}

var sensitiveFields = []string{
	"paytr_token", "merchant_key", "merchant_salt", "hash",
	"apiKey", "api_key", "password", "token", "authorization",
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var redactions = buildRedactions()

func buildRedactions() []redaction {
	var out []redaction
	for _, field := range sensitiveFields {
		quoted := regexp.QuoteMeta(field)
		out = append(out,
			redaction{regexp.MustCompile(`"` + quoted + `"\s*:\s*"[^"]*"`), `"` + field + `":"***REDACTED***"`},
			redaction{regexp.MustCompile(`(^|[&?\s])` + quoted + `=[^&\s]*`), `${1}` + field + `=***REDACTED***`},
		)
	}
	return out
}

// SanitizeForLog masks secrets in JSON bodies and form encoded strings
func SanitizeForLog(data string) string {
	result := data
	for _, r := range redactions {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}
