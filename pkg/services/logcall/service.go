// Package logcall provides a service that writes a message to the process log.
package logcall

import (
	"context"
	"errors"
	"log/slog"

	"github.com/netvariant/moqui-workflow/pkg/protocol"
)

const ID = "log.message"

type Service struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) protocol.Service {
	return &Service{logger: logger.With("service", ID)}
}

func (s *Service) ID() string          { return ID }
func (s *Service) Name() string        { return "Log Message" }
func (s *Service) Description() string { return "Writes the message to the log at the given level." }

func (s *Service) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string", "minLength": 1},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
		},
		"required": []string{"message"},
	}
}

func (s *Service) Call(ctx context.Context, params map[string]any) (map[string]any, error) {
	message, ok := params["message"].(string)
	if !ok {
		return nil, errors.New("missing required parameter 'message'")
	}

	level, _ := params["level"].(string)

	switch level {
	case "debug":
		s.logger.DebugContext(ctx, message)
	case "warn":
		s.logger.WarnContext(ctx, message)
	case "error":
		s.logger.ErrorContext(ctx, message)
	default:
		level = "info"
		s.logger.InfoContext(ctx, message)
	}

	return map[string]any{"result": message, "level": level}, nil
}
