package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/drewmudry/visium-api/client"
	"github.com/drewmudry/visium-api/models"
	"github.com/spf13/cobra"
)

// NewCreateCommand creates the create command
func NewCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <prompt>",
		Short: "Submit a prompt for rendering",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCreate,
	}

	cmd.Flags().BoolP("wait", "w", false, "Poll until the video is finished")
	cmd.Flags().Duration("interval", 2*time.Second, "Polling interval used with --wait")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetBool("wait")
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	created, err := c.CreateVideo(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !wait {
		return printJSON(cmd, created)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "task %s accepted\n", created.TaskID)
	status, err := c.Wait(ctx, created.TaskID, interval, func(s models.TaskStatusResponse) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", s.Status, s.Message)
	})
	if err != nil {
		return err
	}
	if status.VideoURL != nil {
		url := c.URL(*status.VideoURL)
		status.VideoURL = &url
	}
	if err := printJSON(cmd, status); err != nil {
		return err
	}
	if status.Status == models.StatusFailed {
		return fmt.Errorf("task %s failed", created.TaskID)
	}
	return nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	return client.New(server), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}
