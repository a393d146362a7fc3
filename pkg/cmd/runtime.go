package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/engine"
	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/lock"
	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/netvariant/moqui-workflow/pkg/otelhelper"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

// Flags are shared by every binary.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Storage URL (memory://, file://path, postgres://...)",
			Value:   "file://./data",
			Sources: cli.EnvVars("WORKFLOW_DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("WORKFLOW_EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "lock",
			Usage:   "Instance lock (lease, record, redis)",
			Value:   "lease",
			Sources: cli.EnvVars("WORKFLOW_LOCK"),
		},
		&cli.DurationFlag{
			Name:    "lock-lease",
			Usage:   "How long a held instance stays locked without being released",
			Value:   lock.DefaultLease,
			Sources: cli.EnvVars("WORKFLOW_LOCK_LEASE"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis lock",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("WORKFLOW_REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "script-language",
			Usage:   "Language of condition scripts and variable expressions (javascript, expr)",
			Value:   "javascript",
			Sources: cli.EnvVars("WORKFLOW_SCRIPT_LANGUAGE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("WORKFLOW_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("WORKFLOW_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "worker-id",
			Usage:   "Lock owner token of this process (defaults to hostname:pid)",
			Sources: cli.EnvVars("WORKFLOW_WORKER_ID"),
		},
	}
}

// Runtime is everything a binary wires around the engine.
type Runtime struct {
	Logger   *slog.Logger
	Store    persistence.Persistence
	Bus      eventbus.EventBus
	Registry *registry.Registry
	Engine   *engine.Engine
	Provider string

	closers []func(ctx context.Context) error
}

// NewRuntime builds the runtime from the shared flags. With publish set, the engine hands
// task updates and resumed instances to the bus instead of running them inline.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, publish bool) (*Runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	rt := &Runtime{
		Logger:   log.WithModule(serviceName),
		Provider: command.String("event-bus"),
	}

	if err := rt.build(ctx, command, serviceName, publish); err != nil {
		rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, command *cli.Command, serviceName string, publish bool) error {
	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return err
	}

	rt.onClose(shutdown)

	rt.Store, err = NewPersistence(ctx, rt.Logger, command.String("database-url"))
	if err != nil {
		return err
	}

	rt.onClose(rt.Store.Close)

	rt.Bus, err = NewEventBus(rt.Provider, serviceName, rt.Logger)
	if err != nil {
		return err
	}

	rt.onClose(func(context.Context) error { return rt.Bus.Close() })

	locker, closeLocker, err := NewLocker(ctx, command.String("lock"), rt.Store, command.Duration("lock-lease"), command.String("redis-url"))
	if err != nil {
		return err
	}

	rt.onClose(func(context.Context) error { return closeLocker() })

	scripts, err := NewScriptEngine(ctx, command.String("script-language"))
	if err != nil {
		return err
	}

	rt.Registry, err = NewRegistry(rt.Logger)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Store:    rt.Store,
		Locker:   locker,
		Scripts:  scripts,
		Services: rt.Registry,
		Notifier: NewNotifier(rt.Provider, rt.Bus, rt.Logger),
		Tracer:   tracer,
		Logger:   rt.Logger,
		Owner:    command.String("worker-id"),
	}

	if publish {
		opts.Publisher = rt.Bus
	}

	rt.Engine, err = engine.New(opts)

	return err
}

func (rt *Runtime) onClose(fn func(ctx context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of creation and logs failures.
func (rt *Runtime) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}

	if err := errors.Join(errs...); err != nil {
		rt.Logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
