package coord

import (
	"context"
	"encoding/json"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// TableInfo is the value of a table node: its id and hosting server.
type TableInfo struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Server string `json:"server"`
}

// LookupTable reads one table's assignment. A missing table is ErrNoNode.
func LookupTable(ctx context.Context, c *Client, instanceID, name string) (*TableInfo, error) {
	data, err := c.Get(ctx, TablePath(instanceID, name))
	if err != nil {
		return nil, err
	}
	var info TableInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, "decode table %s", name)
	}
	return &info, nil
}

// ListTables reads every table's assignment in name order.
func ListTables(ctx context.Context, c *Client, instanceID string) ([]TableInfo, error) {
	names, err := c.Children(ctx, TablesPath(instanceID))
	if err != nil {
		if errors.Is(err, ErrNoNode) {
			return []TableInfo{}, nil
		}
		return nil, err
	}
	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		info, err := LookupTable(ctx, c, instanceID, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *info)
	}
	return tables, nil
}
