package coord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Client talks to a coordination service.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the service at addr ("host:port").
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr + "/v1",
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, "/ruok", nil, nil)
	if err != nil {
		return err
	}
	if string(body) != "imok" {
		return fmt.Errorf("unexpected liveness answer %q", body)
	}
	return nil
}

// WaitReady polls Ping until it succeeds or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := c.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(errors.Join(errors.ErrTimeout, err), "coordination service at %s", c.base)
		case <-ticker.C:
		}
	}
}

// Get returns the node's data.
func (c *Client) Get(ctx context.Context, p string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/nodes"+Clean(p), nil, nil)
}

// Set writes the node, creating missing parents.
func (c *Client) Set(ctx context.Context, p string, data []byte) error {
	_, err := c.do(ctx, http.MethodPut, "/nodes"+Clean(p), data, nil)
	return err
}

// Create writes the node only if it does not exist yet.
func (c *Client) Create(ctx context.Context, p string, data []byte) error {
	_, err := c.do(ctx, http.MethodPut, "/nodes"+Clean(p), data, map[string]string{"If-None-Match": "*"})
	return err
}

// Delete removes the node and its descendants.
func (c *Client) Delete(ctx context.Context, p string) error {
	_, err := c.do(ctx, http.MethodDelete, "/nodes"+Clean(p), nil, nil)
	return err
}

// Children lists the node's direct children.
func (c *Client) Children(ctx context.Context, p string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/children"+Clean(p), nil, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, errors.Wrap(err, "decode children")
	}
	return names, nil
}

// Await polls until the node exists and returns its data.
func (c *Client) Await(ctx context.Context, p string) ([]byte, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		data, err := c.Get(ctx, p)
		if err == nil {
			return data, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(errors.Join(errors.ErrTimeout, err), "waiting for %s", Clean(p))
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, header map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return data, nil
	case http.StatusNotFound:
		return nil, ErrNoNode
	case http.StatusConflict:
		return nil, ErrNodeExists
	default:
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
}
