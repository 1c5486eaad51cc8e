package display

import (
	"strings"
	"testing"
)

func TestTable_BasicTable(t *testing.T) {
	table := NewTable(nil, "Name", "Size")
	table.SetMaxWidth(0)
	table.AddRow("2024-03-01_02-00-00.tar.gz", "1.2 MB")
	table.AddRow("2024-02-29_02-00-00", "8.0 MB")

	result := table.Render()
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")

	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), result)
	}
	if lines[0] != lines[2] || lines[0] != lines[5] {
		t.Errorf("separators should match:\n%s", result)
	}
	for _, line := range lines {
		if len(line) != len(lines[0]) {
			t.Errorf("line %q has width %d, want %d", line, len(line), len(lines[0]))
		}
	}
	if !strings.Contains(lines[1], "Name") || !strings.Contains(lines[3], "2024-03-01_02-00-00.tar.gz") {
		t.Errorf("unexpected table content:\n%s", result)
	}
}

func TestTable_Empty(t *testing.T) {
	if result := NewTable(nil).Render(); result != "" {
		t.Errorf("empty table should render as empty string, got %q", result)
	}
}

func TestTable_RightAlignment(t *testing.T) {
	table := NewTable(nil, "Name", "Size")
	table.SetMaxWidth(0)
	table.SetBorder(NoBorderStyle)
	table.SetColumnAlignment(1, AlignRight)
	table.AddRow("a", "1 B")
	table.AddRow("b", "10.0 KB")

	lines := strings.Split(strings.TrimRight(table.Render(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[1], "    1 B") {
		t.Errorf("size should be right aligned: %q", lines[1])
	}
}

func TestTable_FitsMaxWidth(t *testing.T) {
	table := NewTable(nil, "Path")
	table.SetMaxWidth(20)
	table.AddRow(strings.Repeat("x", 60))

	for _, line := range strings.Split(strings.TrimRight(table.Render(), "\n"), "\n") {
		if len(line) > 20 {
			t.Errorf("line exceeds max width: %q", line)
		}
	}
	if !strings.Contains(table.Render(), "...") {
		t.Error("truncated cell should end with an ellipsis")
	}
}

func TestColorSystem_Disabled(t *testing.T) {
	cs := NewColorSystem(DarkColorTheme(), false)
	if cs.IsColorSupported() {
		t.Fatal("colors should be disabled")
	}
	if got := cs.Colorize("text", ColorRed); got != "text" {
		t.Errorf("Colorize should return plain text, got %q", got)
	}
	if got := cs.Sprintf(ColorGreen, "%d backups", 3); got != "3 backups" {
		t.Errorf("Sprintf returned %q", got)
	}
}

func TestGetThemeByName(t *testing.T) {
	if GetThemeByName("light") != LightColorTheme() {
		t.Error("light theme not returned")
	}
	if GetThemeByName("unknown") != DarkColorTheme() {
		t.Error("unknown theme should fall back to dark")
	}
}
