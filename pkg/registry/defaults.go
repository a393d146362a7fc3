package registry

import (
	"net/http"

	"github.com/netvariant/moqui-workflow/pkg/services/httpcall"
	"github.com/netvariant/moqui-workflow/pkg/services/logcall"
)

// RegisterDefaults registers the built-in services.
func (r *Registry) RegisterDefaults(client *http.Client) error {
	if err := r.Register(httpcall.New(client, r.logger)); err != nil {
		return err
	}

	return r.Register(logcall.New(r.logger))
}
