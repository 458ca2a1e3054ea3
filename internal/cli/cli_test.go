package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"webpsync/internal/model"
	"webpsync/internal/source"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "images", "convert-all", "retry", "restore", "schedule", "metrics", "migrate"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Missing command %s", name)
		}
	}
	if cmd, _, err := root.Find([]string{"schedule", "set"}); err != nil || cmd.Name() != "set" {
		t.Errorf("Missing schedule set")
	}
	if cmd, _, err := root.Find([]string{"metrics", "export"}); err != nil || cmd.Name() != "export" {
		t.Errorf("Missing metrics export")
	}
}

func TestBuildPatchOnlyChangedFlags(t *testing.T) {
	cmd := newScheduleSetCmd()
	var f scheduleFlags
	if err := cmd.ParseFlags([]string{"--time", "03:15", "--days", "1,3,5", "--active"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	f.scheduleTime, _ = cmd.Flags().GetString("time")
	f.days, _ = cmd.Flags().GetIntSlice("days")
	f.active, _ = cmd.Flags().GetBool("active")

	p := buildPatch(cmd, f)
	if p.ScheduleTime == nil || *p.ScheduleTime != "03:15" {
		t.Errorf("Unexpected time %v", p.ScheduleTime)
	}
	if p.DaysOfWeek == nil || len(*p.DaysOfWeek) != 3 {
		t.Errorf("Unexpected days %v", p.DaysOfWeek)
	}
	if p.IsActive == nil || !*p.IsActive {
		t.Errorf("Expected active")
	}
	if p.Quality != nil || p.TargetWidth != nil || p.ApplyWatermark != nil {
		t.Errorf("Unchanged flags must stay nil: %+v", p)
	}
}

func TestWriteImages(t *testing.T) {
	records := []model.ImageRecord{
		source.NewImageRecord(source.Projects, "1", "https://cdn.example.com/1.jpg"),
		source.NewImageRecord(source.ProjectImages, "2", "https://cdn.example.com/2.webp"),
	}

	var buf bytes.Buffer
	if err := writeImages(&buf, records, source.FilterOther); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "projects-1-main") || strings.Contains(out, "project_images-2") {
		t.Errorf("Unexpected listing:\n%s", out)
	}
	if !strings.Contains(out, "total=2 webp=1 other=1") {
		t.Errorf("Missing summary:\n%s", out)
	}
}
