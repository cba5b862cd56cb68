package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"

	"github.com/sirupsen/logrus"
)

// SalesforceClient talks to the Salesforce REST API on behalf of the sync
// services. Authentication uses the OAuth username/password grant of the
// configured connected app; the access token is refreshed once on a 401.
type SalesforceClient struct {
	InstanceURL string
	APIVersion  string
	Client      *http.Client

	tokenURL       string
	consumerKey    string
	consumerSecret string
	username       string
	password       string

	mu          sync.Mutex
	accessToken string
}

// NewSalesforceClient creates a client from the loaded configuration.
func NewSalesforceClient() *SalesforceClient {
	timeout := 30 * time.Second
	cfg := config.AppConfig
	if cfg != nil && cfg.Salesforce.Timeout > 0 {
		timeout = time.Duration(cfg.Salesforce.Timeout) * time.Second
	}

	client := &SalesforceClient{
		Client:   &http.Client{Timeout: timeout},
		tokenURL: config.GetSalesforceTokenURL(),
	}
	if cfg != nil {
		client.InstanceURL = strings.TrimRight(cfg.Salesforce.InstanceURL, "/")
		client.APIVersion = cfg.Salesforce.APIVersion
		client.consumerKey = cfg.Salesforce.ConsumerKey
		client.consumerSecret = cfg.Salesforce.ConsumerSecret
		client.username = cfg.Salesforce.Username
		client.password = cfg.Salesforce.Password
	}
	return client
}

// tokenResponse is the OAuth token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// APIVersionInfo is one entry of the /services/data version listing.
type APIVersionInfo struct {
	Label   string `json:"label"`
	URL     string `json:"url"`
	Version string `json:"version"`
}

// QueryResult is a SOQL query response page.
type QueryResult struct {
	TotalSize      int                      `json:"totalSize"`
	Done           bool                     `json:"done"`
	NextRecordsURL string                   `json:"nextRecordsUrl"`
	Records        []map[string]interface{} `json:"records"`
}

// recordResult is the create/upsert response body.
type recordResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Created bool   `json:"created"`
	Errors  []struct {
		Message    string `json:"message"`
		StatusCode string `json:"statusCode"`
	} `json:"errors"`
}

// Authenticate performs the username/password token grant and caches the
// access token.
func (c *SalesforceClient) Authenticate() error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.consumerKey)
	form.Set("client_secret", c.consumerSecret)
	form.Set("username", c.username)
	form.Set("password", c.password)

	resp, err := c.Client.PostForm(c.tokenURL, form)
	if err != nil {
		return fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || token.AccessToken == "" {
		return fmt.Errorf("salesforce auth failed (status %d): %s %s", resp.StatusCode, token.Error, token.ErrorDesc)
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	if token.InstanceURL != "" {
		c.InstanceURL = strings.TrimRight(token.InstanceURL, "/")
	}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"instance_url": c.InstanceURL,
		"api_version":  c.APIVersion,
	}).Info("Salesforce authentication succeeded")
	return nil
}

// GetVersions lists available REST API versions. Used as the connection
// status probe because it needs no object permissions.
func (c *SalesforceClient) GetVersions() ([]APIVersionInfo, error) {
	var versions []APIVersionInfo
	if err := c.doJSON(http.MethodGet, "/services/data", nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Describe returns the field metadata of a Salesforce object type.
func (c *SalesforceClient) Describe(objectType string) (map[string]interface{}, error) {
	var describe map[string]interface{}
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/describe", c.APIVersion, objectType)
	if err := c.doJSON(http.MethodGet, path, nil, &describe); err != nil {
		return nil, err
	}
	return describe, nil
}

// CreateRecord creates a record and returns its Salesforce ID.
func (c *SalesforceClient) CreateRecord(objectType string, fields map[string]interface{}) (string, error) {
	var result recordResult
	path := fmt.Sprintf("/services/data/%s/sobjects/%s", c.APIVersion, objectType)
	if err := c.doJSON(http.MethodPost, path, fields, &result); err != nil {
		return "", err
	}
	if !result.Success && result.ID == "" {
		return "", fmt.Errorf("salesforce create failed: %s", firstRecordError(result))
	}
	return result.ID, nil
}

// UpdateRecord updates a record in place.
func (c *SalesforceClient) UpdateRecord(objectType, id string, fields map[string]interface{}) error {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/%s", c.APIVersion, objectType, id)
	return c.doJSON(http.MethodPatch, path, fields, nil)
}

// UpsertRecord writes a record through a Salesforce external ID field.
// It returns the record ID and whether the record was created (as opposed
// to updated).
func (c *SalesforceClient) UpsertRecord(objectType, externalIDField, externalID string, fields map[string]interface{}) (string, bool, error) {
	var result recordResult
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/%s/%s",
		c.APIVersion, objectType, externalIDField, url.PathEscape(externalID))
	if err := c.doJSON(http.MethodPatch, path, fields, &result); err != nil {
		return "", false, err
	}
	return result.ID, result.Created, nil
}

// DeleteRecord deletes a record.
func (c *SalesforceClient) DeleteRecord(objectType, id string) error {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/%s", c.APIVersion, objectType, id)
	return c.doJSON(http.MethodDelete, path, nil, nil)
}

// Query runs a SOQL query and returns the first result page.
func (c *SalesforceClient) Query(soql string) (*QueryResult, error) {
	var result QueryResult
	path := fmt.Sprintf("/services/data/%s/query?q=%s", c.APIVersion, url.QueryEscape(soql))
	if err := c.doJSON(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryMore fetches the next result page of a paginated query.
func (c *SalesforceClient) QueryMore(nextRecordsURL string) (*QueryResult, error) {
	var result QueryResult
	if err := c.doJSON(http.MethodGet, nextRecordsURL, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON performs one authenticated API round-trip, re-authenticating once
// if the cached token has expired.
func (c *SalesforceClient) doJSON(method, path string, body interface{}, out interface{}) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	if token == "" {
		if err := c.Authenticate(); err != nil {
			return err
		}
		c.mu.Lock()
		token = c.accessToken
		c.mu.Unlock()
	}

	status, respBody, err := c.roundTrip(method, path, body, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.Authenticate(); err != nil {
			return err
		}
		c.mu.Lock()
		token = c.accessToken
		c.mu.Unlock()
		status, respBody, err = c.roundTrip(method, path, body, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("salesforce API returned error (status %d): %s", status, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *SalesforceClient) roundTrip(method, path string, body interface{}, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	reqURL := path
	if strings.HasPrefix(path, "/") {
		reqURL = c.InstanceURL + path
	}

	req, err := http.NewRequest(method, reqURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func firstRecordError(result recordResult) string {
	if len(result.Errors) > 0 {
		return result.Errors[0].Message
	}
	return "unknown error"
}
