package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// Status levels accepted by WriteStatus
const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelInfo    = "info"
)

// ParseOutputFormat validates a --format value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML, FormatCompact:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml, compact)", s)
	}
}

// Field is one labelled line of a human readable document
type Field struct {
	Key   string
	Value string
}

// OutputWriter writes command results in the selected format. Table and
// compact are line oriented; json and yaml encode the value as is.
type OutputWriter struct {
	format OutputFormat
	writer io.Writer
	colors ColorSystem
}

// NewOutputWriter creates a new output writer. colors may be nil.
func NewOutputWriter(format OutputFormat, writer io.Writer, colors ColorSystem) *OutputWriter {
	return &OutputWriter{format: format, writer: writer, colors: colors}
}

// Format returns the current output format
func (w *OutputWriter) Format() OutputFormat {
	return w.format
}

// Structured reports whether the format is machine readable json or yaml
func (w *OutputWriter) Structured() bool {
	return w.format == FormatJSON || w.format == FormatYAML
}

// WriteTable writes rows under headers
func (w *OutputWriter) WriteTable(headers []string, rows [][]string) error {
	switch w.format {
	case FormatJSON, FormatYAML:
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]string, len(headers))
			for i, header := range headers {
				if i < len(row) {
					record[header] = row[i]
				} else {
					record[header] = ""
				}
			}
			records = append(records, record)
		}
		return w.encode(records)
	case FormatCompact:
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t") + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t") + "\n")
		}
		_, err := io.WriteString(w.writer, b.String())
		return err
	default:
		table := NewTable(w.colors, headers...)
		for i := range headers {
			if isNumericHeader(headers[i]) {
				table.SetColumnAlignment(i, AlignRight)
			}
		}
		for _, row := range rows {
			table.AddRow(row...)
		}
		return table.RenderTo(w.writer)
	}
}

// WriteDocument writes v. json and yaml encode v directly; table and compact
// print fields, one per line, under an optional title.
func (w *OutputWriter) WriteDocument(title string, v interface{}, fields []Field) error {
	switch w.format {
	case FormatJSON, FormatYAML:
		return w.encode(v)
	case FormatCompact:
		var b strings.Builder
		for _, f := range fields {
			fmt.Fprintf(&b, "%s=%s\n", f.Key, f.Value)
		}
		_, err := io.WriteString(w.writer, b.String())
		return err
	default:
		var b strings.Builder
		if title != "" {
			b.WriteString(w.colorize(title, func(t ColorTheme) Color { return t.Primary }) + "\n")
		}
		width := 0
		for _, f := range fields {
			if len(f.Key) > width {
				width = len(f.Key)
			}
		}
		for _, f := range fields {
			fmt.Fprintf(&b, "  %-*s  %s\n", width+1, f.Key+":", f.Value)
		}
		_, err := io.WriteString(w.writer, b.String())
		return err
	}
}

// WriteStatus writes a one line status message
func (w *OutputWriter) WriteStatus(level, message string) error {
	switch w.format {
	case FormatJSON, FormatYAML:
		return w.encode(map[string]string{"level": level, "message": message})
	case FormatCompact:
		_, err := fmt.Fprintf(w.writer, "%s:%s\n", strings.ToUpper(level), message)
		return err
	default:
		_, err := fmt.Fprintln(w.writer, w.colorize(statusPrefix(level), levelColor(level))+" "+message)
		return err
	}
}

func (w *OutputWriter) encode(v interface{}) error {
	if w.format == FormatYAML {
		enc := yaml.NewEncoder(w.writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal output to YAML: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal output to JSON: %w", err)
	}
	return nil
}

func (w *OutputWriter) colorize(text string, pick func(ColorTheme) Color) string {
	if w.colors == nil {
		return text
	}
	return w.colors.Colorize(text, pick(w.colors.Theme()))
}

func statusPrefix(level string) string {
	switch level {
	case LevelSuccess:
		return "[OK]"
	case LevelWarning:
		return "[WARN]"
	case LevelError:
		return "[ERROR]"
	default:
		return "[INFO]"
	}
}

func levelColor(level string) func(ColorTheme) Color {
	return func(t ColorTheme) Color {
		switch level {
		case LevelSuccess:
			return t.Success
		case LevelWarning:
			return t.Warning
		case LevelError:
			return t.Error
		default:
			return t.Info
		}
	}
}

func isNumericHeader(header string) bool {
	switch strings.ToLower(header) {
	case "size", "count", "backups", "entries", "ratio", "age":
		return true
	}
	return false
}

// FormatBytes formats byte size in human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatAge renders an age as whole days, hours or minutes
func FormatAge(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d > 0:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return "0m"
	}
}
