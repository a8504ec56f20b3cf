// Package catalog projects stored notices into the downstream CKAN catalog:
// one dataset per notice, one attached JSON resource.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dataminds-hq/tender-harvester/pkg/httpclient"
)

// ErrNotFound marks a dataset that does not exist in the catalog.
var ErrNotFound = errors.New("catalog: not found")

// Tag is a CKAN tag entry.
type Tag struct {
	Name string `json:"name"`
}

// Extra is a CKAN key/value extra.
type Extra struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Resource is the subset of a CKAN resource the pipeline reads back.
type Resource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Format string `json:"format"`
}

// Dataset mirrors the CKAN package fields the pipeline writes and reads.
type Dataset struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	OwnerOrg  string     `json:"owner_org"`
	Private   bool       `json:"private"`
	Tags      []Tag      `json:"tags,omitempty"`
	Extras    []Extra    `json:"extras,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}

// ResourceUpload carries one JSON document destined for a dataset.
type ResourceUpload struct {
	PackageID string
	Name      string
	Format    string
	Title     string
	Payload   []byte
}

// API is the narrow create/read contract consumed from the catalog service.
type API interface {
	PackageList(ctx context.Context) ([]string, error)
	PackageShow(ctx context.Context, name string) (*Dataset, error)
	PackageCreate(ctx context.Context, ds Dataset) (*Dataset, error)
	ResourceCreate(ctx context.Context, up ResourceUpload) (*Resource, error)
}

// Client talks to the CKAN action API.
type Client struct {
	baseURL string
	apiKey  string
	http    *resty.Client
}

// NewClient builds a Client for the CKAN instance at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpclient.NewRestyHTTPClient(timeout),
	}
}

// actionEnvelope is the uniform CKAN action response wrapper.
type actionEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) actionURL(action string) string {
	return c.baseURL + "/api/3/action/" + action
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader("Authorization", c.apiKey)
	}
	return req
}

// decodeAction validates the envelope and unmarshals the result into out.
func decodeAction(action string, status int, body []byte, out any) error {
	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%s returned status %d", action, status)
	}

	var env actionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if !env.Success {
		return fmt.Errorf("%s failed: %s", action, strings.TrimSpace(string(env.Error)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}

// PackageList returns the names of all datasets in the catalog.
func (c *Client) PackageList(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx).Get(c.actionURL("package_list"))
	if err != nil {
		return nil, fmt.Errorf("package_list: %w", err)
	}
	var names []string
	if err := decodeAction("package_list", resp.StatusCode(), resp.Body(), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// PackageShow loads a dataset by name. Returns ErrNotFound when absent.
func (c *Client) PackageShow(ctx context.Context, name string) (*Dataset, error) {
	resp, err := c.request(ctx).
		SetQueryParam("id", name).
		Get(c.actionURL("package_show"))
	if err != nil {
		return nil, fmt.Errorf("package_show: %w", err)
	}
	var ds Dataset
	if err := decodeAction("package_show", resp.StatusCode(), resp.Body(), &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// PackageCreate creates a new dataset.
func (c *Client) PackageCreate(ctx context.Context, ds Dataset) (*Dataset, error) {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ds).
		Post(c.actionURL("package_create"))
	if err != nil {
		return nil, fmt.Errorf("package_create: %w", err)
	}
	var created Dataset
	if err := decodeAction("package_create", resp.StatusCode(), resp.Body(), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ResourceCreate uploads the document as a dataset resource via multipart form.
func (c *Client) ResourceCreate(ctx context.Context, up ResourceUpload) (*Resource, error) {
	resp, err := c.request(ctx).
		SetFormData(map[string]string{
			"package_id": up.PackageID,
			"name":       up.Name,
			"format":     up.Format,
			"title":      up.Title,
		}).
		SetFileReader("upload", up.Name, bytes.NewReader(up.Payload)).
		Post(c.actionURL("resource_create"))
	if err != nil {
		return nil, fmt.Errorf("resource_create: %w", err)
	}
	var res Resource
	if err := decodeAction("resource_create", resp.StatusCode(), resp.Body(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}
