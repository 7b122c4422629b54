package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

var instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// runInitializer creates a new instance: it reads the instance name, the
// root password and its confirmation from stdin, records them with the
// coordination service and marks the data directory as initialized.
func runInitializer(ctx context.Context, env *Env, _ []string) error {
	site, err := env.Site()
	if err != nil {
		return err
	}
	zk, err := requireKey(site, siteconf.KeyZooKeeperHost)
	if err != nil {
		return err
	}
	dfs, err := requireKey(site, siteconf.KeyDFSDir)
	if err != nil {
		return err
	}

	in := bufio.NewReader(env.Stdin)
	name, err := prompt(in, env.Stdout, "Instance name")
	if err != nil {
		return err
	}
	if !instanceNameRegex.MatchString(name) {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid instance name %q", name)
	}
	password, err := prompt(in, env.Stdout, "Enter initial password for "+RootUser)
	if err != nil {
		return err
	}
	confirm, err := prompt(in, env.Stdout, "Confirm initial password for "+RootUser)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.Wrap(errors.ErrInvalidInput, "password must not be empty")
	}
	if password != confirm {
		return ErrPasswordMismatch
	}

	if ok, _ := afero.DirExists(env.Fs, filepath.Join(dfs, InstanceIDDir)); ok {
		return errors.NewConfigError("data directory already initialized", errors.ErrInvalidInput).WithPath(dfs)
	}

	client := coord.NewClient(zk)
	waitCtx, cancel := context.WithTimeout(ctx, coordinationWait)
	defer cancel()
	if err := client.WaitReady(waitCtx); err != nil {
		return err
	}

	id := uuid.NewString()
	if err := client.Create(ctx, coord.InstancePath(name), []byte(id)); err != nil {
		if errors.Is(err, coord.ErrNodeExists) {
			return errors.Wrapf(errors.ErrInvalidInput, "instance name %q already in use", name)
		}
		return errors.Wrap(err, "register instance name")
	}

	nodes := []struct {
		path string
		data []byte
	}{
		{coord.UserPath(id, RootUser), []byte(PasswordDigest(id, password))},
		{coord.TablesPath(id), nil},
		{coord.TabletServersPath(id), nil},
		{coord.LoggersPath(id), nil},
	}
	for _, n := range nodes {
		if err := client.Set(ctx, n.path, n.data); err != nil {
			return errors.Wrapf(err, "write %s", n.path)
		}
	}

	for _, dir := range []string{filepath.Join(dfs, InstanceIDDir), filepath.Join(dfs, "tables")} {
		if err := env.Fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := afero.WriteFile(env.Fs, filepath.Join(dfs, InstanceIDDir, id), nil, 0o644); err != nil {
		return errors.Wrap(err, "record instance id")
	}

	env.Logger.Info("instance initialized", zap.String("instance", name), zap.String("instance_id", id))
	return nil
}

// prompt writes label and reads one line. A final line without a newline
// is accepted.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	if out != nil {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errors.Wrapf(errors.Join(errors.ErrInvalidInput, err), "read %s", strings.ToLower(label))
	}
	return strings.TrimRight(line, "\r\n"), nil
}
