package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
)

// WordPressClient talks to the WordPress REST API using an application
// password. Object types map to wp/v2 collection routes ("posts",
// "pages", "users", or a custom post type's rest_base).
type WordPressClient struct {
	BaseURL string
	Client  *http.Client

	username    string
	appPassword string
}

// NewWordPressClient creates a client from the loaded configuration.
func NewWordPressClient() *WordPressClient {
	timeout := 30 * time.Second
	cfg := config.AppConfig
	if cfg != nil && cfg.WordPress.Timeout > 0 {
		timeout = time.Duration(cfg.WordPress.Timeout) * time.Second
	}

	client := &WordPressClient{
		Client: &http.Client{Timeout: timeout},
	}
	if cfg != nil {
		client.BaseURL = strings.TrimRight(cfg.WordPress.BaseURL, "/")
		client.username = cfg.WordPress.Username
		client.appPassword = cfg.WordPress.AppPassword
	}
	return client
}

// GetRecord fetches one WordPress record.
func (c *WordPressClient) GetRecord(objectType, id string) (map[string]interface{}, error) {
	var record map[string]interface{}
	path := fmt.Sprintf("/wp/v2/%s/%s", objectType, url.PathEscape(id))
	if err := c.doJSON(http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// CreateRecord creates a WordPress record and returns its ID.
func (c *WordPressClient) CreateRecord(objectType string, fields map[string]interface{}) (string, error) {
	var record map[string]interface{}
	path := fmt.Sprintf("/wp/v2/%s", objectType)
	if err := c.doJSON(http.MethodPost, path, fields, &record); err != nil {
		return "", err
	}
	return recordID(record)
}

// UpdateRecord updates fields of an existing WordPress record.
func (c *WordPressClient) UpdateRecord(objectType, id string, fields map[string]interface{}) error {
	path := fmt.Sprintf("/wp/v2/%s/%s", objectType, url.PathEscape(id))
	return c.doJSON(http.MethodPost, path, fields, nil)
}

// DeleteRecord deletes a WordPress record (moved to trash unless the type
// does not support trashing).
func (c *WordPressClient) DeleteRecord(objectType, id string) error {
	path := fmt.Sprintf("/wp/v2/%s/%s", objectType, url.PathEscape(id))
	return c.doJSON(http.MethodDelete, path, nil, nil)
}

func (c *WordPressClient) doJSON(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wordpress API returned error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func recordID(record map[string]interface{}) (string, error) {
	switch id := record["id"].(type) {
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	case string:
		return id, nil
	default:
		return "", fmt.Errorf("wordpress response has no usable id field")
	}
}
