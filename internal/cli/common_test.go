package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orizon-lang/rmcc/internal/codegen"
)

func fixedLogger(verbose, debug bool) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&buf, verbose, debug)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name           string
		verbose, debug bool
		want           string
	}{
		{"quiet", false, false, "[WARN] 03:04:05: w 1\n[ERROR] 03:04:05: e 2\n"},
		{"verbose", true, false, "[INFO] 03:04:05: i\n[WARN] 03:04:05: w 1\n[ERROR] 03:04:05: e 2\n"},
		{"debug", false, true, "[DEBUG] 03:04:05: d\n[DEBUG] 03:04:05: pass 3\n[WARN] 03:04:05: w 1\n[ERROR] 03:04:05: e 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := fixedLogger(tt.verbose, tt.debug)
			l.Info("i")
			l.Debug("d")
			l.Debugf("pass %d", 3)
			l.Warn("w %d", 1)
			l.Error("e %d", 2)
			if got := buf.String(); got != tt.want {
				t.Errorf("got\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		c, err := LoadConfig(filepath.Join(dir, "absent.json"))
		if err != nil {
			t.Fatal(err)
		}
		if *c != *DefaultConfig() {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "rmcc.json")
		if err := os.WriteFile(path, []byte(`{"max_passes": 3, "stop_at": "regalloc"}`), 0644); err != nil {
			t.Fatal(err)
		}
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if c.MaxPasses != 3 || c.StopAt != "regalloc" || c.Jobs != 1 {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte(`{"jobs":`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Errorf("got %v", err)
		}
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(dir, "saved.json")
		want := &Config{Verbose: true, Color: ColorNever, MaxPasses: 4, Jobs: 2, StopAt: "legal"}
		if err := want.SaveConfig(path); err != nil {
			t.Fatal(err)
		}
		got, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if *got != *want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RMCC_MAX_PASSES", "2")
	t.Setenv("RMCC_JOBS", "8")
	t.Setenv("RMCC_STOP_AT", "peephole")
	t.Setenv("RMCC_DEBUG", "true")
	t.Setenv("NO_COLOR", "1")

	c := DefaultConfig()
	c.ApplyEnv()
	if c.MaxPasses != 2 || c.Jobs != 8 || c.StopAt != "peephole" || !c.Debug || c.Color != ColorNever {
		t.Errorf("got %+v", c)
	}
	if c.Verbose {
		t.Errorf("verbose set without RMCC_VERBOSE")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero passes", func(c *Config) { c.MaxPasses = 0 }, "max_passes"},
		{"zero jobs", func(c *Config) { c.Jobs = 0 }, "jobs"},
		{"bad color", func(c *Config) { c.Color = "sometimes" }, "color"},
		{"bad stage", func(c *Config) { c.StopAt = "link" }, "stop_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			switch {
			case tt.want == "" && err != nil:
				t.Errorf("unexpected error %v", err)
			case tt.want != "" && (err == nil || !strings.Contains(err.Error(), tt.want)):
				t.Errorf("got %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestPipeline(t *testing.T) {
	c := DefaultConfig()
	c.StopAt = "regalloc"
	c.Jobs = 3
	l, _ := fixedLogger(false, false)
	cfg, err := c.Pipeline(l)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StopAt != codegen.StageRegalloc || cfg.Jobs != 3 || cfg.MaxPasses != 10 || cfg.Logger != l {
		t.Errorf("got %+v", cfg)
	}
}

func TestUseColor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for mode, want := range map[string]bool{ColorAlways: true, ColorNever: false, ColorAuto: false} {
		c := &Config{Color: mode}
		if got := c.UseColor(f); got != want {
			t.Errorf("%s: got %v, want %v", mode, got, want)
		}
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintVersion(&buf, "rmcc", true); err != nil {
		t.Fatal(err)
	}
	var out struct {
		Tool string      `json:"tool"`
		Info VersionInfo `json:"version_info"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Tool != "rmcc" || out.Info.Version != Version {
		t.Errorf("got %+v", out)
	}

	buf.Reset()
	if err := PrintVersion(&buf, "rmcc", false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "rmcc v"+Version+"\n") {
		t.Errorf("got %q", buf.String())
	}
}
