package engine

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

func runCoordination(ctx context.Context, env *Env, args []string) error {
	if len(args) != 1 {
		return errors.Wrap(errors.ErrInvalidInput, "usage: coordination <zoo.cfg>")
	}
	cfg, err := siteconf.ReadCoordination(env.Fs, args[0])
	if err != nil {
		return err
	}

	store, err := coord.Open(env.Fs, cfg.DataDir)
	if err != nil {
		return err
	}
	ln, _, err := listen(cfg.ClientPort, false, env.Logger)
	if err != nil {
		return err
	}
	env.Logger.Info("coordination service configured",
		zap.Int("client_port", cfg.ClientPort),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("max_client_cnxns", cfg.MaxClientCnxns),
	)

	router := withMiddleware(coord.NewHandler(store, env.Logger), env.Logger)
	router.HandleFunc("/health", health).Methods(http.MethodGet)
	return serve(ctx, ln, router, env.Logger)
}
