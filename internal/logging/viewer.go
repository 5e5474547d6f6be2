package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogEntry is one decoded line of the JSON log.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Attrs   map[string]any `json:"-"`
	Raw     string         `json:"-"`
	IsValid bool           `json:"-"` // false when the line was not JSON
}

// ViewerConfig holds the filters applied while reading a log.
type ViewerConfig struct {
	Level   string         // drop entries below this level
	Pattern *regexp.Regexp // keep only lines matching this pattern
	NoColor bool
}

// Viewer reads, filters, and renders log files for the logs command.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the filtered entries among the last n lines of the file.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Ring of the last n lines; a full slurp would hold the whole
	// file for what is usually a 50-line request.
	ring := make([]string, 0, n)
	next := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // records can be long JSON
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	var entries []LogEntry
	for i := 0; i < len(ring); i++ {
		entry := v.parseLine(ring[(next+i)%len(ring)])
		if v.keep(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams new matching entries to the channel until the context is
// cancelled. It starts at the current end of the file.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if err := v.drain(ctx, reader, entries); err != nil {
				return err
			}
		}
	}
}

// drain forwards every complete line currently buffered in the reader.
func (v *Viewer) drain(ctx context.Context, reader *bufio.Reader, entries chan<- LogEntry) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil // partial line, wait for the next poll
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		if entry := v.parseLine(line); v.keep(entry) {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// FormatEntry renders one entry as "HH:MM:SS.mmm LEVEL msg k=v ...".
// Lines that failed to parse come back verbatim.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.paintLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Msg)

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Attrs[k])
	}
	return b.String()
}

// Print writes formatted entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

func (v *Viewer) parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.IsValid = true

	if s, ok := fields["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	entry.Level, _ = fields["level"].(string)
	entry.Msg, _ = fields["msg"].(string)

	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	entry.Attrs = fields
	return entry
}

func (v *Viewer) keep(entry LogEntry) bool {
	if v.config.Level != "" && LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

var levelColors = map[string]string{
	"debug":   "\033[90m",
	"info":    "\033[32m",
	"warn":    "\033[33m",
	"warning": "\033[33m",
	"error":   "\033[31m",
}

func (v *Viewer) paintLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)

	color, ok := levelColors[strings.ToLower(level)]
	if v.config.NoColor || !ok {
		return label
	}
	return color + label + "\033[0m"
}
