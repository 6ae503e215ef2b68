package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/gopaytr/infra/config"
	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	indexPrefix     = "gopaytr"
	systemLogsIndex = indexPrefix + "-system-logs"
)

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client and makes sure the indices exist
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.OpenSearchInsecure,
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.EnableLogging,
	}

	if osClient.enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := osClient.setupIndices(ctx); err != nil {
			logger.Warn("Failed to setup OpenSearch indices", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// setupIndices creates the payment event and system log indices
func (c *Client) setupIndices(ctx context.Context) error {
	indices := map[string]string{
		c.GetEventIndexName("paytr"): paymentEventMapping,
		systemLogsIndex:              systemLogMapping,
	}

	for indexName, mapping := range indices {
		exists, err := c.indexExists(ctx, indexName)
		if err != nil {
			return fmt.Errorf("check index %s: %w", indexName, err)
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, indexName, mapping); err != nil {
			return fmt.Errorf("create index %s: %w", indexName, err)
		}
		logger.Info("Created OpenSearch index", logger.LogContext{
			Fields: map[string]any{"index": indexName},
		})
	}

	return nil
}

// indexExists checks if an index exists
func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

// createIndex creates a new index with the given mapping
func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

// GetEventIndexName returns the payment event index of a provider
func (c *Client) GetEventIndexName(provider string) string {
	return indexPrefix + "-" + provider + "-events"
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

const paymentEventMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"event_id": {"type": "keyword"},
			"event_type": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"merchant_id": {"type": "keyword"},
			"merchant_oid": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"client_ip": {"type": "ip"},
			"user_agent": {"type": "text"},
			"amount": {"type": "long"},
			"currency": {"type": "keyword"},
			"status": {"type": "keyword"},
			"success": {"type": "boolean"},
			"failure_kind": {"type": "keyword"},
			"message": {"type": "text"},
			"processing_time_ms": {"type": "long"},
			"test_mode": {"type": "boolean"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"level": {"type": "keyword"},
			"message": {"type": "text"},
			"component": {"type": "keyword"},
			"merchant_id": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"error": {"type": "text"},
			"service": {"type": "keyword"},
			"environment": {"type": "keyword"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`
