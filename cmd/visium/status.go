package main

import (
	"errors"
	"fmt"

	"github.com/drewmudry/visium-api/client"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no task with id %s", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}
