package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/instamo/internal/cluster"
	"github.com/Iron-Ham/instamo/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start [dir]",
	Short: "Start a cluster and keep it running until interrupted",
	Long: `Start lays out a cluster in dir (which must be empty or missing),
launches every role, prints the coordinator endpoint and blocks until
interrupted. Ctrl-C stops all processes; the directory is left behind with
its logs and manifest.

Without dir, a fresh temporary directory is used.

Examples:
  # Start with a prompted root password
  instamo start /tmp/mini

  # Three tablet servers, a site override and a metrics endpoint
  instamo start /tmp/mini --password secret --tservers 3 \
    --site tserver.memory.maps.max=1G --metrics-addr :9100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

var (
	startPassword    string
	startSite        []string
	startMetricsAddr string
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&startPassword, "password", "p", "", "Root password (prompted when omitted)")
	startCmd.Flags().StringArrayVar(&startSite, "site", nil, "Site property override as key=value (repeatable)")
	startCmd.Flags().StringVar(&startMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	startCmd.Flags().Int("tservers", 0, "Number of tablet servers (default from config)")
	startCmd.Flags().String("runtime", "", "Role runtime: native or jvm (default from config)")
	startCmd.Flags().String("instance", "", "Instance name (default from config)")
	startCmd.Flags().String("version", "", "Storage engine version (default from config)")

	_ = viper.BindPFlag("cluster.tablet_servers", startCmd.Flags().Lookup("tservers"))
	_ = viper.BindPFlag("runtime.kind", startCmd.Flags().Lookup("runtime"))
	_ = viper.BindPFlag("cluster.instance_name", startCmd.Flags().Lookup("instance"))
	_ = viper.BindPFlag("cluster.version", startCmd.Flags().Lookup("version"))
}

func runStart(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	overrides, err := config.ParseSiteOverrides(startSite)
	if err != nil {
		return err
	}

	dir := ""
	if len(args) > 0 {
		dir = args[0]
	} else {
		dir, err = os.MkdirTemp("", "instamo-")
		if err != nil {
			return fmt.Errorf("failed to create cluster directory: %w", err)
		}
	}

	password := startPassword
	if password == "" {
		password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	opts, err := cluster.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	// notifyTermination below covers every signal the process-wide hook
	// would, and the deferred Close stops the cluster.
	opts = append(opts, cluster.WithHook(cluster.NewManualHook()))

	c, err := cluster.New(dir, password, config.MergeSite(cfg.Site, overrides), opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := notifyTermination(cmd.Context())
	defer stop()

	if startMetricsAddr != "" {
		srv := serveMetrics(startMetricsAddr, c)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(out, "Metrics:     http://%s/metrics\n", startMetricsAddr)
	}

	fmt.Fprintf(out, "Starting cluster in %s\n", c.Dir())
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}

	fmt.Fprintf(out, "Instance:    %s\n", c.InstanceName())
	fmt.Fprintf(out, "Coordinator: %s\n", c.CoordinatorEndpoint())
	fmt.Fprintf(out, "Manifest:    %s\n", c.ManifestPath())
	fmt.Fprintln(out, "Press Ctrl-C to stop.")

	<-ctx.Done()
	fmt.Fprintln(out, "\nStopping cluster...")
	return nil
}

// notifyTermination is cancelled by any of the platform's termination
// signals, SIGHUP included, so a closed terminal still stops the cluster.
func notifyTermination(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, cluster.TerminationSignals()...)
}

// readPassword prompts on the terminal without echo, or reads one line when
// stdin is not a terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Root password: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("root password must not be empty")
	}
	return password, nil
}

func serveMetrics(addr string, c *cluster.Cluster) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", c.Metrics().Handler()).Methods(http.MethodGet)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv
}
