package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Confluent Schema Registry error codes for missing lookups.
const (
	registryCodeSubjectNotFound = 40401
	registryCodeSchemaNotFound  = 40403
)

// ErrSchemaNotRegistered is returned when a subject does not hold the looked-up schema.
var ErrSchemaNotRegistered = errors.New("schema not registered")

// RegistryError is a non-2xx answer from the registry.
type RegistryError struct {
	Method  string
	Subject string
	Status  int
	Code    int
	Message string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry %s %s: status %d (code %d): %s", e.Method, e.Subject, e.Status, e.Code, e.Message)
}

// SchemaRegistryClient talks to a Confluent compatible Schema Registry over its REST API.
// Credentials in the base URL are sent as basic auth.
type SchemaRegistryClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client with a 10s request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	c := &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if u, err := url.Parse(c.baseURL); err == nil && u.User != nil {
		c.username = u.User.Username()
		c.password, _ = u.User.Password()
		u.User = nil
		c.baseURL = u.String()
	}
	return c
}

// EnsureSchema returns the registry id of schema under subject. The schema is registered when
// the subject is missing or holds only other versions; registration is idempotent upstream.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.lookup(ctx, subject, schema)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrSchemaNotRegistered) {
		return 0, err
	}
	return c.register(ctx, subject, schema)
}

func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, fmt.Sprintf("%s/subjects/%s", c.baseURL, url.PathEscape(subject)), subject, schema)
	var regErr *RegistryError
	if errors.As(err, &regErr) && regErr.Status == http.StatusNotFound &&
		(regErr.Code == registryCodeSubjectNotFound || regErr.Code == registryCodeSchemaNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrSchemaNotRegistered, subject)
	}
	return id, err
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, url.PathEscape(subject)), subject, schema)
}

func (c *SchemaRegistryClient) post(ctx context.Context, endpoint, subject, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		regErr := &RegistryError{Method: req.Method, Subject: subject, Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
		var detail struct {
			Code    int    `json:"error_code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &detail) == nil && detail.Code != 0 {
			regErr.Code = detail.Code
			regErr.Message = detail.Message
		}
		return 0, regErr
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode registry response for %s: %w", subject, err)
	}
	return payload.ID, nil
}
