// Package main runs the workflow REST API.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/netvariant/moqui-workflow/pkg/cmd"
	"github.com/netvariant/moqui-workflow/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	flags := append(cmd.Flags(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("WORKFLOW_PORT"),
		},
	)

	command := &cli.Command{
		Name:                  "workflow-api",
		Usage:                 "Serve the workflow REST API",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action:                run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cmd.NewRuntime(ctx, command, "workflow-api", true)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	rt.Logger.InfoContext(ctx, "Initializing workflow API", "event_bus", rt.Provider)

	// An in-process bus has no other consumer.
	if rt.Provider == "gochannel" {
		if err := rt.Engine.RegisterHandlers(rt.Bus); err != nil {
			return err
		}

		if err := rt.Bus.Subscribe(ctx); err != nil {
			return err
		}
	}

	handlers := web.NewAPIHandlers(rt.Engine, validator.New(validator.WithRequiredStructEnabled()), rt.Registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Workflow API")
	})

	handlers.RegisterRoutes(app)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.Logger.InfoContext(ctx, "Shutting down workflow API")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
