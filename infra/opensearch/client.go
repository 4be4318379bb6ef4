package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const indexPrefix = "paypal-proxy"

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client and makes sure the log indices exist
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.IsProduction(),
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
		if err := osClient.setupIndices(context.Background(), cfg.GatewayProvider); err != nil {
			log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

// GetLogIndexName returns the request log index of a gateway
func (c *Client) GetLogIndexName(gateway string) string {
	if gateway == "" {
		gateway = "unknown"
	}
	return indexPrefix + "-" + gateway + "-requests"
}

// SystemIndexName is the index system logs are written to
func (c *Client) SystemIndexName() string {
	return indexPrefix + "-system-logs"
}

func (c *Client) setupIndices(ctx context.Context, gateway string) error {
	indices := map[string]string{
		c.GetLogIndexName(gateway): requestLogMapping,
		c.SystemIndexName():        systemLogMapping,
	}

	for indexName, mapping := range indices {
		exists, err := c.indexExists(ctx, indexName)
		if err != nil {
			return fmt.Errorf("checking index %s: %w", indexName, err)
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, indexName, mapping); err != nil {
			return fmt.Errorf("creating index %s: %w", indexName, err)
		}
		log.Printf("Created OpenSearch index: %s", indexName)
	}
	return nil
}

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

const requestLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"site_id": {"type": "long"},
			"gateway": {"type": "keyword"},
			"operation": {"type": "keyword"},
			"method": {"type": "keyword"},
			"endpoint": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"user_agent": {"type": "text"},
			"client_ip": {"type": "keyword"},
			"request": {
				"type": "object",
				"properties": {
					"headers": {"type": "object"},
					"body": {"type": "text"},
					"params": {"type": "object"}
				}
			},
			"response": {
				"type": "object",
				"properties": {
					"status_code": {"type": "integer"},
					"body": {"type": "text"},
					"processing_time_ms": {"type": "integer"}
				}
			},
			"order_info": {
				"type": "object",
				"properties": {
					"order_id": {"type": "keyword"},
					"provider_order_id": {"type": "keyword"},
					"amount": {"type": "double"},
					"currency": {"type": "keyword"},
					"status": {"type": "keyword"}
				}
			},
			"error": {
				"type": "object",
				"properties": {
					"code": {"type": "keyword"},
					"message": {"type": "text"}
				}
			}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date"},
			"level": {"type": "keyword"},
			"message": {"type": "text"},
			"component": {"type": "keyword"},
			"site_id": {"type": "long"},
			"gateway": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"error": {"type": "text"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`
