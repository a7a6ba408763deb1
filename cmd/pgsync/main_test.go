package main

import (
	"testing"

	"github.com/urfave/cli/v2"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{5 << 30, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{5, "5s"},
		{65, "1m05s"},
		{3660, "1.0h"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCLIFlagParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(t *testing.T, c *cli.Context)
	}{
		{
			name: "plan type default",
			args: []string{"pgsync", "plan"},
			validate: func(t *testing.T, c *cli.Context) {
				if got := c.String("type"); got != "full" {
					t.Errorf("type = %q, want full", got)
				}
			},
		},
		{
			name: "plan type incremental",
			args: []string{"pgsync", "plan", "--type", "incremental"},
			validate: func(t *testing.T, c *cli.Context) {
				if got := c.String("type"); got != "incremental" {
					t.Errorf("type = %q, want incremental", got)
				}
			},
		},
		{
			name: "full force flag",
			args: []string{"pgsync", "full", "--force"},
			validate: func(t *testing.T, c *cli.Context) {
				if !c.Bool("force") {
					t.Error("force flag not set")
				}
			},
		},
		{
			name: "table mode delta",
			args: []string{"pgsync", "table", "--mode", "delta", "users"},
			validate: func(t *testing.T, c *cli.Context) {
				if got := c.String("mode"); got != "delta" {
					t.Errorf("mode = %q, want delta", got)
				}
				if got := c.Args().First(); got != "users" {
					t.Errorf("table arg = %q, want users", got)
				}
			},
		},
		{
			name: "global config flag",
			args: []string{"pgsync", "--config", "/tmp/other.yaml", "history"},
			validate: func(t *testing.T, c *cli.Context) {
				for _, ctx := range c.Lineage() {
					if ctx == nil {
						continue
					}
					if v := ctx.String("config"); v != "" {
						if v != "/tmp/other.yaml" {
							t.Errorf("config = %q, want /tmp/other.yaml", v)
						}
						return
					}
				}
				t.Error("config flag not found in lineage")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *cli.Context
			app := &cli.App{
				Name: "pgsync",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: "pgsync.yaml"},
				},
				Commands: []*cli.Command{
					{
						Name: "plan",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "type", Value: "full"},
							&cli.StringFlag{Name: "table"},
						},
						Action: func(c *cli.Context) error { captured = c; return nil },
					},
					{
						Name: "full",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force"},
							&cli.BoolFlag{Name: "skip-plan"},
						},
						Action: func(c *cli.Context) error { captured = c; return nil },
					},
					{
						Name: "table",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "mode", Value: "recreate"},
						},
						Action: func(c *cli.Context) error { captured = c; return nil },
					},
					{
						Name:   "history",
						Action: func(c *cli.Context) error { captured = c; return nil },
					},
				},
			}

			if err := app.Run(tt.args); err != nil {
				t.Fatalf("app.Run: %v", err)
			}
			if captured == nil {
				t.Fatal("command action never ran")
			}
			tt.validate(t, captured)
		})
	}
}
