package siteconf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Coordination is the coordination service's configuration.
type Coordination struct {
	TickTime       int
	InitLimit      int
	SyncLimit      int
	ClientPort     int
	MaxClientCnxns int
	DataDir        string
}

// NewCoordination returns the fixed low-resource tuning for port and dataDir.
func NewCoordination(port int, dataDir string) *Coordination {
	return &Coordination{
		TickTime:       2000,
		InitLimit:      10,
		SyncLimit:      5,
		ClientPort:     port,
		MaxClientCnxns: 100,
		DataDir:        dataDir,
	}
}

// Render writes zoo.cfg.
func (c *Coordination) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"tickTime=%d\ninitLimit=%d\nsyncLimit=%d\nclientPort=%d\nmaxClientCnxns=%d\ndataDir=%s\n",
		c.TickTime, c.InitLimit, c.SyncLimit, c.ClientPort, c.MaxClientCnxns, c.DataDir)
	return err
}

// ParseCoordination parses zoo.cfg. Unknown keys, blank lines and comments
// are ignored.
func ParseCoordination(r io.Reader) (*Coordination, error) {
	c := &Coordination{}
	ints := map[string]*int{
		"tickTime":       &c.TickTime,
		"initLimit":      &c.InitLimit,
		"syncLimit":      &c.SyncLimit,
		"clientPort":     &c.ClientPort,
		"maxClientCnxns": &c.MaxClientCnxns,
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key=value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if key == "dataDir" {
			c.DataDir = value
			continue
		}
		if dst, ok := ints[key]; ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", lineNo, key, err)
			}
			*dst = n
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if c.ClientPort == 0 {
		return nil, fmt.Errorf("clientPort is missing")
	}
	return c, nil
}

// ReadCoordination reads and parses zoo.cfg at path.
func ReadCoordination(fs afero.Fs, path string) (*Coordination, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.NewConfigError("cannot read coordination configuration", err).WithPath(path)
	}
	c, err := ParseCoordination(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewConfigError("malformed coordination configuration", err).WithPath(path)
	}
	return c, nil
}
