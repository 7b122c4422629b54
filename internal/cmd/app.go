package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/instamo/internal/client"
	"github.com/Iron-Ham/instamo/internal/cluster"
	"github.com/Iron-Ham/instamo/internal/errors"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Run the sample client against a running cluster",
	Long: `Connect to a running cluster as root, create table "foo", write two
cells to row r1 and print a scan of the table.

The endpoint and instance can be read from a cluster directory's manifest
with --dir instead of being given explicitly.`,
	Args: cobra.NoArgs,
	RunE: runApp,
}

var (
	appEndpoint string
	appInstance string
	appPassword string
	appDir      string
	appTable    string
	appTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(appCmd)

	appCmd.Flags().StringVar(&appEndpoint, "endpoint", "", "Coordinator endpoint (host:port)")
	appCmd.Flags().StringVar(&appInstance, "instance", cluster.DefaultInstanceName, "Instance name")
	appCmd.Flags().StringVarP(&appPassword, "password", "p", "", "Root password")
	appCmd.Flags().StringVar(&appDir, "dir", "", "Read endpoint and instance from this cluster directory")
	appCmd.Flags().StringVar(&appTable, "table", "foo", "Table to create and scan")
	appCmd.Flags().DurationVar(&appTimeout, "timeout", time.Minute, "Overall timeout")
	_ = appCmd.MarkFlagRequired("password")
}

func runApp(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	endpoint, instance := appEndpoint, appInstance
	if appDir != "" {
		m, err := cluster.ReadManifest(afero.NewOsFs(), cluster.ManifestPath(appDir))
		if err != nil {
			return err
		}
		if endpoint == "" {
			endpoint = m.Endpoint
		}
		if !cmd.Flags().Changed("instance") {
			instance = m.Instance
		}
	}
	if endpoint == "" {
		return fmt.Errorf("--endpoint or --dir is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), appTimeout)
	defer cancel()

	conn, err := client.Connect(ctx, instance, endpoint, "root", appPassword)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	fmt.Fprintf(out, "Connected to %s (%s)\n", instance, conn.InstanceID())

	if _, err := conn.CreateTable(ctx, appTable); err != nil {
		if !errors.Is(err, client.ErrTableExists) {
			return err
		}
		fmt.Fprintf(out, "Table %s already exists\n", appTable)
	}

	err = conn.Write(ctx, appTable, []client.Mutation{
		*client.NewMutation("r1").Put("cf1", "cq1", "v1").Put("cf1", "cq2", "v3"),
	})
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	entries, err := conn.Scan(ctx, appTable)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s:%s [%d]\t%s\n", e.Row, e.Family, e.Qualifier, e.Timestamp, e.Value)
	}
	return nil
}
