package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// InstanceIDDir holds one empty file named after the instance id.
const InstanceIDDir = "instance_id"

// coordinationWait bounds how long a role waits for the coordination
// service at startup.
const coordinationWait = 30 * time.Second

// ReadInstanceID returns the id the initializer recorded under dfsDir.
func ReadInstanceID(fs afero.Fs, dfsDir string) (string, error) {
	dir := filepath.Join(dfsDir, InstanceIDDir)
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", errors.NewConfigError("instance is not initialized", err).WithPath(dir)
	}
	if len(entries) != 1 {
		return "", errors.NewConfigError("expected exactly one instance id", errors.ErrInvalidInput).WithPath(dir)
	}
	return entries[0].Name(), nil
}

func requireKey(site *siteconf.Site, key string) (string, error) {
	v, ok := site.Get(key)
	if !ok || v == "" {
		return "", errors.NewConfigError("missing site property "+key, errors.ErrInvalidInput)
	}
	return v, nil
}

// member is a running service role joined to an initialized instance.
type member struct {
	env        *Env
	site       *siteconf.Site
	coord      *coord.Client
	instanceID string
	digest     string
}

func join(ctx context.Context, env *Env) (*member, error) {
	site, err := env.Site()
	if err != nil {
		return nil, err
	}
	zk, err := requireKey(site, siteconf.KeyZooKeeperHost)
	if err != nil {
		return nil, err
	}
	dfs, err := requireKey(site, siteconf.KeyDFSDir)
	if err != nil {
		return nil, err
	}
	id, err := ReadInstanceID(env.Fs, dfs)
	if err != nil {
		return nil, err
	}

	client := coord.NewClient(zk)
	waitCtx, cancel := context.WithTimeout(ctx, coordinationWait)
	defer cancel()
	if err := client.WaitReady(waitCtx); err != nil {
		return nil, err
	}
	digest, err := client.Get(waitCtx, coord.UserPath(id, RootUser))
	if err != nil {
		return nil, errors.Wrap(err, "read root credentials")
	}

	env.Logger.Info("joined instance", zap.String("instance_id", id), zap.String("coordination", zk))
	return &member{
		env:        env,
		site:       site,
		coord:      client,
		instanceID: id,
		digest:     string(digest),
	}, nil
}

// register advertises addr under dir and returns a task that removes the
// registration once ctx is done.
func (m *member) register(ctx context.Context, dir, addr string) (func(context.Context) error, error) {
	node := dir + "/" + addr
	if err := m.coord.Set(ctx, node, []byte(addr)); err != nil {
		return nil, errors.Wrapf(err, "register %s", node)
	}
	m.env.Logger.Info("registered", zap.String("node", node))

	return func(ctx context.Context) error {
		<-ctx.Done()
		cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.coord.Delete(cleanup, node); err != nil && !errors.Is(err, coord.ErrNoNode) {
			m.env.Logger.Warn("deregister failed", zap.String("node", node), zap.Error(err))
		}
		return nil
	}, nil
}
