// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/registry"
	"github.com/netvariant/moqui-workflow/pkg/script"
)

const serviceTimeout = 30 * time.Second

// NewRegistry returns a registry holding the built-in services.
func NewRegistry(logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	if err := reg.RegisterDefaults(&http.Client{Timeout: serviceTimeout}); err != nil {
		return nil, err
	}

	return reg, nil
}

// NewScriptEngine returns the engine for language. JavaScript runners are pooled.
//
// nolint:ireturn
func NewScriptEngine(ctx context.Context, language string) (script.Engine, error) {
	switch language {
	case "", "javascript":
		return script.NewJavaScriptEngine(ctx, 10, 2), nil
	case "expr":
		return script.NewExprEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported script language %q", language)
	}
}

// NewNotifier publishes notification requests on a Kafka bus, where a delivery service
// can consume them, and logs them otherwise.
//
// nolint:ireturn
func NewNotifier(provider string, bus eventbus.EventPublisher, logger *slog.Logger) notify.Notifier {
	if provider == "kafka" && bus != nil {
		return notify.NewBusNotifier(bus)
	}

	return notify.NewLogNotifier(logger)
}
