package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/tuncerburak97/tekrar/internal/model"
)

const defaultServer = "http://127.0.0.1:8080/_tekrar"

// controlClient talks to a running serve instance.
type controlClient struct {
	server  string
	timeout time.Duration
}

func (c *controlClient) url(path string) string {
	return strings.TrimRight(c.server, "/") + path
}

func (c *controlClient) do(agent *fiber.Agent) (int, []byte, error) {
	code, body, errs := agent.Timeout(c.timeout).Bytes()
	if len(errs) > 0 {
		return 0, nil, errors.Join(errs...)
	}
	return code, body, nil
}

func (c *controlClient) expect(agent *fiber.Agent, want int) ([]byte, error) {
	code, body, err := c.do(agent)
	if err != nil {
		return nil, fmt.Errorf("control api unreachable: %w", err)
	}
	if code != want {
		return nil, fmt.Errorf("control api returned %d: %s", code, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func newClientCmds() []*cobra.Command {
	client := &controlClient{}

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the oldest recorded request",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client.expect(fiber.Post(client.url("/replay")), fiber.StatusOK)
			if err != nil {
				return err
			}
			var outcome model.ReplayOutcome
			if err := json.Unmarshal(body, &outcome); err != nil {
				return fmt.Errorf("decode replay outcome: %w", err)
			}
			if !outcome.Success {
				return fmt.Errorf("replay failed: %s", outcome.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed, upstream status %d\n", outcome.Status)
			return nil
		},
	}

	var output string
	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "List recorded requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/requests"
			switch output {
			case "json":
			case "yaml":
				path += "?format=yaml"
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
			body, err := client.expect(fiber.Get(client.url(path)), fiber.StatusOK)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	requestsCmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all recorded and pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client.expect(fiber.Delete(client.url("/requests")), fiber.StatusNoContent)
			return err
		},
	}

	recordCmd := &cobra.Command{
		Use:       "record <start|stop>",
		Short:     "Switch capture on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "start" && args[0] != "stop" {
				return fmt.Errorf("expected start or stop, got %q", args[0])
			}
			body, err := client.expect(fiber.Post(client.url("/recording/"+args[0])), fiber.StatusOK)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmds := []*cobra.Command{replayCmd, requestsCmd, clearCmd, recordCmd}
	server := os.Getenv("TEKRAR_SERVER")
	if server == "" {
		server = defaultServer
	}
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&client.server, "server", server, "control API base URL (env TEKRAR_SERVER)")
		cmd.Flags().DurationVar(&client.timeout, "timeout", 30*time.Second, "request timeout")
	}
	return cmds
}
