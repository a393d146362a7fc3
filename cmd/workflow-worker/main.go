// Package main runs the worker that advances instances from bus events and sweeps
// elapsed timeouts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/netvariant/moqui-workflow/pkg/cmd"
	"github.com/netvariant/moqui-workflow/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := append(cmd.Flags(),
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron spec of the elapsed timeout sweep",
			Value:   engine.DefaultSweepSchedule,
			Sources: cli.EnvVars("WORKFLOW_SWEEP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "reminder-schedule",
			Usage:   "Cron spec of the task reminder run, or off",
			Value:   engine.DefaultReminderSchedule,
			Sources: cli.EnvVars("WORKFLOW_REMINDER_SCHEDULE"),
		},
	)

	command := &cli.Command{
		Name:                  "workflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Advance workflow instances",
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

	rt, err := cmd.NewRuntime(ctx, command, "workflow-worker", true)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	logger := rt.Logger.With("worker_id", rt.Engine.Owner())
	logger.InfoContext(ctx, "Initializing workflow worker", "event_bus", rt.Provider)

	if err := rt.Engine.RegisterHandlers(rt.Bus); err != nil {
		return err
	}

	if err := rt.Bus.Subscribe(ctx); err != nil {
		return err
	}

	scanner := engine.NewScanner(rt.Engine, logger, command.String("sweep-schedule"), command.String("reminder-schedule"))
	if err := scanner.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Received shutdown signal")

	return scanner.Stop(context.WithoutCancel(ctx))
}
