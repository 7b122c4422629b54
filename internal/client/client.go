// Package client is a small client for a running cluster: it finds the
// master through the coordination service, then creates tables, writes
// mutations and scans entries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Iron-Ham/instamo/internal/engine"
	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/engine/tablet"
	"github.com/Iron-Ham/instamo/internal/errors"
)

type (
	// Mutation is an atomic set of column updates to one row.
	Mutation = tablet.Mutation
	// Entry is one cell returned by Scan.
	Entry = tablet.Entry
	// TableInfo describes a table and the server hosting it.
	TableInfo = coord.TableInfo
)

// NewMutation starts a mutation for row.
func NewMutation(row string) *Mutation {
	return tablet.NewMutation(row)
}

var (
	// ErrAuthentication is returned when the cluster rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnknownInstance is returned when no instance has the given name.
	ErrUnknownInstance = errors.New("unknown instance")
	// ErrTableExists is returned by CreateTable for an existing table.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned for operations on a missing table.
	ErrTableNotFound = errors.New("table does not exist")
)

// DefaultConnectTimeout bounds Connect when ctx has no deadline.
const DefaultConnectTimeout = 30 * time.Second

// Connector is an authenticated connection to one instance.
type Connector struct {
	coord      *coord.Client
	instanceID string
	master     string
	user       string
	password   string
	http       *http.Client
}

// Connect looks up instance through the coordination service at endpoint,
// waits for its master, and checks the credentials.
func Connect(ctx context.Context, instance, endpoint, user, password string) (*Connector, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	zk := coord.NewClient(endpoint)
	if err := zk.WaitReady(ctx); err != nil {
		return nil, err
	}
	id, err := zk.Get(ctx, coord.InstancePath(instance))
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return nil, errors.Wrapf(ErrUnknownInstance, "%s at %s", instance, endpoint)
		}
		return nil, err
	}
	master, err := zk.Await(ctx, coord.MasterLockPath(string(id)))
	if err != nil {
		return nil, errors.Wrap(err, "locate master")
	}

	c := &Connector{
		coord:      zk,
		instanceID: string(id),
		master:     string(master),
		user:       user,
		password:   password,
		http:       &http.Client{Timeout: time.Minute},
	}
	if err := c.awaitMaster(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// awaitMaster retries until the master answers an authenticated request.
func (c *Connector) awaitMaster(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := c.Tables(ctx)
		if err == nil || errors.Is(err, ErrAuthentication) {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(errors.Join(errors.ErrTimeout, err), "master at %s", c.master)
		case <-ticker.C:
		}
	}
}

// InstanceID returns the connected instance's id.
func (c *Connector) InstanceID() string {
	return c.instanceID
}

// CreateTable creates a table.
func (c *Connector) CreateTable(ctx context.Context, name string) (*TableInfo, error) {
	var info TableInfo
	err := c.call(ctx, http.MethodPost, c.master, "/v1/tables", engine.CreateTableRequest{Name: name}, &info)
	if err != nil {
		if errors.Is(err, errConflict) {
			return nil, errors.Wrap(ErrTableExists, name)
		}
		return nil, err
	}
	return &info, nil
}

// Tables lists the instance's tables.
func (c *Connector) Tables(ctx context.Context) ([]TableInfo, error) {
	var tables []TableInfo
	if err := c.call(ctx, http.MethodGet, c.master, "/v1/tables", nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Write applies muts to table atomically per mutation.
func (c *Connector) Write(ctx context.Context, table string, muts []Mutation) error {
	info, err := c.lookup(ctx, table)
	if err != nil {
		return err
	}
	var resp engine.WriteResponse
	return c.call(ctx, http.MethodPost, info.Server, "/v1/tables/"+url.PathEscape(table)+"/mutations", muts, &resp)
}

// Scan returns every entry of table in key order.
func (c *Connector) Scan(ctx context.Context, table string) ([]Entry, error) {
	return c.ScanRange(ctx, table, "", "")
}

// ScanRange returns the entries with start <= row < end. Empty bounds are
// open.
func (c *Connector) ScanRange(ctx context.Context, table, start, end string) ([]Entry, error) {
	info, err := c.lookup(ctx, table)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	path := "/v1/tables/" + url.PathEscape(table) + "/scan"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []Entry
	if err := c.call(ctx, http.MethodGet, info.Server, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Connector) lookup(ctx context.Context, table string) (*TableInfo, error) {
	info, err := coord.LookupTable(ctx, c.coord, c.instanceID, table)
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return nil, errors.Wrap(ErrTableNotFound, table)
		}
		return nil, err
	}
	return info, nil
}

var errConflict = errors.New("conflict")

func (c *Connector) call(ctx context.Context, method, addr, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Wrapf(ErrAuthentication, "user %s", c.user)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(ErrTableNotFound, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
