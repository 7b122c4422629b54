package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/instamo/internal/cluster"
)

var statusCmd = &cobra.Command{
	Use:   "status <dir>",
	Short: "Show the state of a cluster directory",
	Long:  `Display the manifest of a cluster: endpoint, ports and every role process.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	statusLabelStyle  = lipgloss.NewStyle().Bold(true).Width(13)
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	statusStateStyles = map[string]lipgloss.Style{
		cluster.StateRunning.String():    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		cluster.StateStopped.String():    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		cluster.StateNotStarted.String(): lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
)

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := cluster.ReadManifest(afero.NewOsFs(), cluster.ManifestPath(args[0]))
	if err != nil {
		return fmt.Errorf("no cluster manifest in %s: %w", args[0], err)
	}
	renderStatus(cmd.OutOrStdout(), m)
	return nil
}

func renderStatus(w io.Writer, m *cluster.Manifest) {
	state := m.State
	if style, ok := statusStateStyles[m.State]; ok {
		state = style.Render(m.State)
	}

	field := func(label, value string) {
		fmt.Fprintln(w, statusLabelStyle.Render(label)+value)
	}
	field("Instance", m.Instance)
	field("State", state)
	field("Coordinator", m.Endpoint)
	field("Version", m.Version+" ("+m.Runtime+")")
	field("Ports", fmt.Sprintf("coordination %d, master %d, tserver %d",
		m.Ports.Coordination, m.Ports.Master, m.Ports.TabletServer))
	if !m.StartedAt.IsZero() {
		field("Started", m.StartedAt.Local().Format(time.DateTime))
	}
	if m.StoppedAt != nil {
		field("Stopped", m.StoppedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w)

	if len(m.Processes) == 0 {
		fmt.Fprintln(w, "No processes launched.")
		return
	}

	rows := make([][]string, 0, len(m.Processes))
	for _, p := range m.Processes {
		status := "running"
		if p.ExitCode != nil {
			status = "exited " + strconv.Itoa(*p.ExitCode)
		}
		rows = append(rows, []string{p.Role, strconv.Itoa(p.Pid), status, filepath.Base(p.Stdout), filepath.Base(p.Stderr)})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ROLE", "PID", "STATUS", "STDOUT", "STDERR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return statusHeaderStyle
			}
			return statusCellStyle
		})
	fmt.Fprintln(w, t.Render())
}
