// Command segctl drives a running segmentation-node over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/cloudseg/internal/api"
	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/httputil"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/version"
)

const usage = `segctl - control a segmentation-node

Usage: segctl [-addr URL] [-timeout D] <command> [options]

Commands:
  segment -in FILE [-out FILE]   Segment a cloud (.json or packed binary)
  enable on|off                  Set the stream publication flag
  goal [-wait]                   Accept a goal on the latest stream frame
  goal-status ID                 Show one goal
  goals [-limit N]               List recent goals
  status                         Show node counters
  config                         Show the resolved segmentation config
  version                        Show segctl version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run executes one command and returns the process exit code. A nil hc
// uses http.DefaultClient.
func run(args []string, stdout, stderr io.Writer, hc httputil.HTTPClient) int {
	fs := flag.NewFlagSet("segctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	addr := fs.String("addr", envOr("SEGCTL_ADDR", "http://localhost:8080"), "Node HTTP address")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := api.NewClient(*addr, hc)
	command, rest := fs.Arg(0), fs.Args()[1:]

	var err error
	switch command {
	case "segment":
		err = runSegment(ctx, c, rest, stdout)
	case "enable":
		err = runEnable(ctx, c, rest, stdout)
	case "goal":
		err = runGoal(ctx, c, rest, stdout)
	case "goal-status":
		if len(rest) != 1 {
			err = errors.New("usage: goal-status ID")
			break
		}
		var st orchestrator.GoalStatus
		if st, err = c.Goal(ctx, rest[0]); err == nil {
			err = printJSON(stdout, st)
		}
	case "goals":
		err = runGoals(ctx, c, rest, stdout)
	case "status":
		var st api.StatusResponse
		if st, err = c.Status(ctx); err == nil {
			err = printJSON(stdout, st)
		}
	case "config":
		var cfg interface{}
		if cfg, err = c.Config(ctx); err == nil {
			err = printJSON(stdout, cfg)
		}
	case "version":
		fmt.Fprintln(stdout, version.String("segctl"))
	case "help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runSegment(ctx context.Context, c *api.Client, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	in := fs.String("in", "", "Input cloud file (required)")
	out := fs.String("out", "", "Write the segmented cloud here; the format follows the extension")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("segment: -in is required")
	}

	input, err := readCloud(*in)
	if err != nil {
		return err
	}
	result, err := c.Segment(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Segmented %d input points into %d labeled points in %d segments\n",
		input.Len(), result.Len(), result.Segments())
	if *out == "" {
		return nil
	}
	return writeCloud(*out, result)
}

func runEnable(ctx context.Context, c *api.Client, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: enable on|off")
	}
	var enable bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		enable = true
	case "off", "false", "0":
	default:
		return fmt.Errorf("enable: expected on or off, got %q", args[0])
	}
	if err := c.EnablePublisher(ctx, enable); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Publisher enabled: %v\n", enable)
	return nil
}

func runGoal(ctx context.Context, c *api.Client, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("goal", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "Poll until the goal finishes")
	poll := fs.Duration("poll", 100*time.Millisecond, "Poll interval with -wait")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := c.AcceptGoal(ctx)
	if err != nil {
		return err
	}
	if !*wait {
		fmt.Fprintln(stdout, id)
		return nil
	}

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()
	for {
		st, err := c.Goal(ctx, id)
		if err != nil {
			return err
		}
		if st.State.Terminal() {
			if err := printJSON(stdout, st); err != nil {
				return err
			}
			if st.State == orchestrator.GoalAborted {
				return fmt.Errorf("goal %s aborted: %s", id, st.Diagnostic)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("goal %s still %s: %w", id, st.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

func runGoals(ctx context.Context, c *api.Client, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("goals", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Maximum goals to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	goals, err := c.ListGoals(ctx, *limit)
	if err != nil {
		return err
	}
	for _, g := range goals {
		fmt.Fprintf(stdout, "%s  %-9s  %6d -> %-6d  %s\n",
			g.ID, g.State, g.InputPoints, g.ResultPoints, g.AcceptedAt.Format(time.RFC3339))
	}
	return nil
}

// readCloud loads a .json cloud, or a packed binary cloud for any other
// extension.
func readCloud(path string) (cloud.Cloud, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cloud.Cloud{}, err
	}
	if isJSON(path) {
		var c cloud.Cloud
		if err := json.Unmarshal(data, &c); err != nil {
			return cloud.Cloud{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return c, nil
	}
	return cloud.Decode(data)
}

func writeCloud(path string, c cloud.Cloud) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = c.MarshalBinary()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
