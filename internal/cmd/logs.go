package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/instamo/internal/logging"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

var logsCmd = &cobra.Command{
	Use:   "logs <dir>",
	Short: "View cluster logs",
	Long: `View and filter the logs of a cluster directory: the orchestrator's
own instamo.log and the captured stdout/stderr of every role process.

Examples:
  # Last 50 lines of every log
  instamo logs /tmp/mini

  # Only tablet servers, followed as they grow
  instamo logs /tmp/mini --role tserver -f

  # Warnings and errors from the last ten minutes
  instamo logs /tmp/mini --level warn --since 10m

  # Search for specific patterns
  instamo logs /tmp/mini --grep "lock|replay"`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

var (
	logsRole   string
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsRole, "role", "r", "", "Only show this role (coordination, master, tserver, ... or instamo)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show per log (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// orchestratorLabel names instamo.log in output and for --role.
const orchestratorLabel = "instamo"

var roleLogRegex = regexp.MustCompile(`^([a-z]+)_(\d+)\.(out|err)$`)

// logSource is one log file and its display label.
type logSource struct {
	label string
	path  string
}

// logEntry represents a parsed JSON log line. Orchestrator lines carry
// "time"; role lines carry "ts" in epoch seconds.
type logEntry struct {
	Time  time.Time
	Level string
	Msg   string
	Extra map[string]any
}

// UnmarshalJSON captures the known fields and keeps the rest as extras
func (e *logEntry) UnmarshalJSON(data []byte) error {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	e.Level, _ = all["level"].(string)
	e.Msg, _ = all["msg"].(string)
	switch {
	case all["time"] != nil:
		s, _ := all["time"].(string)
		e.Time, _ = time.Parse(time.RFC3339Nano, s)
	case all["ts"] != nil:
		if ts, ok := all["ts"].(float64); ok {
			sec, frac := math.Modf(ts)
			e.Time = time.Unix(int64(sec), int64(frac*1e9))
		}
	}

	for _, k := range []string{"time", "ts", "level", "msg", "caller"} {
		delete(all, k)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError, "DPANIC", "PANIC", "FATAL":
		return colorRed
	default:
		return colorReset
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError, "DPANIC", "PANIC", "FATAL":
		return 3
	default:
		return -1
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(colorGray)
	sb.WriteString("[")
	sb.WriteString(entry.Time.Format("15:04:05.000"))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	sb.WriteString(" ")
	sb.WriteString(levelColor(entry.Level))
	sb.WriteString("[")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	// Stable field order
	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(colorReset)
		sb.WriteString(fmt.Sprintf("%v", entry.Extra[key]))
	}

	return sb.String()
}

// logFilter holds the parsed filter flags.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
}

func newLogFilter(level, since, grep string) (logFilter, error) {
	f := logFilter{minLevel: -1}
	if level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(level))
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// render returns the display form of line, or false when filtered out.
// Lines that are not JSON are shown raw and only grep applies to them.
func (f logFilter) render(line string) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Msg == "" {
		if f.grep != nil && !f.grep.MatchString(line) {
			return "", false
		}
		return line, true
	}

	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return "", false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return "", false
	}
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return "", false
		}
	}
	return formatLogEntry(&entry), true
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := args[0]
	filter, err := newLogFilter(logsLevel, logsSince, logsGrep)
	if err != nil {
		return err
	}

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, cmd.OutOrStdout(), dir, logsRole, filter)
	}

	sources, err := logSources(dir, logsRole)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No logs found in %s\n", dir)
		return nil
	}
	return displayLogs(cmd.OutOrStdout(), sources, logsTail, filter)
}

// logSources lists the orchestrator log and the role logs under dir,
// optionally restricted to one role.
func logSources(dir, role string) ([]logSource, error) {
	var sources []logSource

	if role == "" || role == orchestratorLabel {
		p := filepath.Join(dir, logging.FileName)
		if _, err := os.Stat(p); err == nil {
			sources = append(sources, logSource{label: orchestratorLabel, path: p})
		}
	}

	logDir := siteconf.NewLayout(dir).Logs
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return sources, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", logDir, err)
	}
	for _, e := range entries {
		if label, ok := roleLogLabel(e.Name(), role); ok {
			sources = append(sources, logSource{label: label, path: filepath.Join(logDir, e.Name())})
		}
	}
	return sources, nil
}

// roleLogLabel reports whether name is a log of role (any role when empty).
// The file name is the label.
func roleLogLabel(name, role string) (string, bool) {
	m := roleLogRegex.FindStringSubmatch(name)
	if m == nil || (role != "" && m[1] != role) {
		return "", false
	}
	return name, true
}

// displayLogs prints the filtered tail of each source
func displayLogs(w io.Writer, sources []logSource, tail int, filter logFilter) error {
	for i, src := range sources {
		lines, err := readFiltered(src.path, filter)
		if err != nil {
			return err
		}
		if tail > 0 && len(lines) > tail {
			lines = lines[len(lines)-tail:]
		}

		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "==> %s <==\n", src.label)
		if len(lines) == 0 {
			fmt.Fprintln(w, "(no matching entries)")
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func readFiltered(path string, filter logFilter) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	// Increase buffer size for potentially long log lines
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if out, ok := filter.render(line); ok {
			lines = append(lines, out)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return lines, nil
}

// followLogs prints lines appended to matching logs, including logs of
// processes started after it began, until ctx is done.
func followLogs(ctx context.Context, w io.Writer, dir, role string, filter logFilter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch logs: %w", err)
	}
	defer watcher.Close()

	logDir := siteconf.NewLayout(dir).Logs
	for _, d := range []string{dir, logDir} {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}

	t := newTailer(w, filter)
	sources, err := logSources(dir, role)
	if err != nil {
		return err
	}
	// Existing content is history; only new lines are followed.
	for _, src := range sources {
		if info, err := os.Stat(src.path); err == nil {
			t.offsets[src.path] = info.Size()
		}
	}

	fmt.Fprintf(w, "Following logs in %s... (Ctrl+C to stop)\n\n", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			label, ok := followLabel(dir, event.Name, role)
			if !ok {
				continue
			}
			if err := t.read(label, event.Name); err != nil {
				fmt.Fprintf(w, "%s: %v\n", label, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

// followLabel maps a changed path to its label when it is a followed log.
func followLabel(dir, path, role string) (string, bool) {
	if path == filepath.Join(dir, logging.FileName) {
		if role != "" && role != orchestratorLabel {
			return "", false
		}
		return orchestratorLabel, true
	}
	if filepath.Dir(path) != siteconf.NewLayout(dir).Logs {
		return "", false
	}
	return roleLogLabel(filepath.Base(path), role)
}

// tailer prints complete new lines of files, remembering how far it read.
type tailer struct {
	w       io.Writer
	filter  logFilter
	offsets map[string]int64
}

func newTailer(w io.Writer, filter logFilter) *tailer {
	return &tailer{w: w, filter: filter, offsets: make(map[string]int64)}
}

func (t *tailer) read(label, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	offset := t.offsets[path]
	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < offset {
		// Truncated or rotated
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// A partial line is read again once it is complete.
			break
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if out, ok := t.filter.render(line); ok {
			fmt.Fprintf(t.w, "%s%s%s %s\n", colorCyan, label, colorReset, out)
		}
	}
	t.offsets[path] = offset
	return nil
}
