package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/drewmudry/visium-api/internal/platform"
	"github.com/drewmudry/visium-api/tasks"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream status changes of all tasks from Redis",
		RunE:  runWatch,
	}

	defaultRedis := os.Getenv("REDIS_URL")
	if defaultRedis == "" {
		defaultRedis = "redis://localhost:6379"
	}
	cmd.Flags().String("redis", defaultRedis, "Redis URL the server publishes status events to")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	redisURL, _ := cmd.Flags().GetString("redis")
	opts, err := platform.RedisOptions(redisURL)
	if err != nil {
		return fmt.Errorf("invalid --redis: %w", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = tasks.Subscribe(ctx, rdb, tasks.ChannelTaskStatus, func(e tasks.StatusEvent) {
		line := fmt.Sprintf("%s [%s] %s", e.TaskID, e.Status, e.Message)
		if e.VideoURL != nil {
			line += " " + *e.VideoURL
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
