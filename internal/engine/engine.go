package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/process"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// EnvLogLevel overrides the roles' log level (debug, info, warn, error).
const EnvLogLevel = "INSTAMO_ENGINE_LOG_LEVEL"

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Env is what a role program receives from its launcher.
type Env struct {
	Fs     afero.Fs
	Path   []string
	Home   string
	Logger *zap.Logger
	Stdin  io.Reader
	Stdout io.Writer
}

// RoleFunc runs a role until ctx is cancelled or it finishes.
type RoleFunc func(ctx context.Context, env *Env, args []string) error

var roles = map[string]RoleFunc{
	"coordination": runCoordination,
	"initializer":  runInitializer,
	"master":       runMaster,
	"tserver":      runTabletServer,
	"logger":       runLogService,
}

// Entries returns the role names Main accepts.
func Entries() []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Main runs the role named in args ("--path <list> <entry> args...") and
// returns the process exit code.
func Main(args []string) int {
	return run(args, os.Stdin, os.Stdout, os.Stderr)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("role", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	pathList := flags.String("path", "", "directories searched for configuration")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: role [--path dirs] <%s> [args...]\n", strings.Join(Entries(), "|"))
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return ExitUsage
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return ExitUsage
	}
	entry, roleArgs := rest[0], rest[1:]
	if _, ok := roles[entry]; !ok {
		fmt.Fprintf(stderr, "unknown role %q\n", entry)
		flags.Usage()
		return ExitUsage
	}

	logger, err := newLogger(entry, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "cannot create logger: %v\n", err)
		return ExitError
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &Env{
		Fs:     afero.NewOsFs(),
		Path:   filepath.SplitList(*pathList),
		Home:   os.Getenv(process.EnvHome),
		Logger: logger,
		Stdin:  stdin,
		Stdout: stdout,
	}

	logger.Info("role starting", zap.Strings("args", roleArgs), zap.Strings("path", env.Path))
	if err := Run(ctx, env, entry, roleArgs); err != nil {
		logger.Error("role failed", zap.Error(err))
		return ExitError
	}
	logger.Info("role finished")
	return ExitOK
}

// Run runs one role in-process until it finishes or ctx is done.
func Run(ctx context.Context, env *Env, entry string, args []string) error {
	fn, ok := roles[entry]
	if !ok {
		return errors.Wrapf(errors.ErrInvalidInput, "unknown role %q", entry)
	}
	return fn(ctx, env, args)
}

func newLogger(role string, w io.Writer) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if s := os.Getenv(EnvLogLevel); s != "" {
		parsed, err := zapcore.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		level.SetLevel(parsed)
	}

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller()).With(
		zap.String("role", role),
		zap.Int("pid", os.Getpid()),
	), nil
}

// Site finds the site file along the path list, then under $ACCUMULO_HOME/conf.
func (e *Env) Site() (*siteconf.Site, error) {
	dirs := slices.Clone(e.Path)
	if e.Home != "" {
		dirs = append(dirs, filepath.Join(e.Home, "conf"))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, siteconf.SiteFile)
		if ok, _ := afero.Exists(e.Fs, p); ok {
			return siteconf.ReadSite(e.Fs, p)
		}
	}
	return nil, errors.NewConfigError(siteconf.SiteFile+" not found on path", errors.ErrInvalidInput)
}

// WALogDir is where tablet servers keep their logs when no logger service
// runs.
func (e *Env) WALogDir(site *siteconf.Site) string {
	if e.Home != "" {
		return filepath.Join(e.Home, "walogs")
	}
	dfs, _ := site.Get(siteconf.KeyDFSDir)
	return filepath.Join(filepath.Dir(dfs), "walogs")
}
