package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// connect opens a blackboard client for instance and checks that Redis
// answers. Failures are printed and returned as printer errors.
func connect(ctx context.Context, redisURL, instance string) (*blackboard.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("%s: %v", redisURL, err),
			[]string{"Use the form redis://host:port"},
		)
	}

	client, err := blackboard.NewClient(redisOpts, instance)
	if err != nil {
		return nil, printer.Error("invalid instance", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Instance": instance, "Error": err.Error()},
			[]string{
				"Start a Redis server:\n  docker run -p 6379:6379 redis:7-alpine",
				"Or run the world in one process by dropping --rank/--all-ranks",
			},
		)
	}
	return client, nil
}
