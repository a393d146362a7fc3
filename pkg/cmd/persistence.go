package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/file"
	"github.com/netvariant/moqui-workflow/pkg/persistence/memory"
	"github.com/netvariant/moqui-workflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "file", "postgres", "postgresql"}

// NewPersistence opens the store named by the scheme of databaseURL. A URL without a
// scheme is a file store path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewStore(), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return ""
}
