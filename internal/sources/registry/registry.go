// Package registry maps source IDs to their connector constructors.
// It is separate from pkg/sources so that the contract package does not
// import its implementations.
package registry

import (
	"fmt"
	"slices"

	"github.com/agentstation/fundingscape/internal/sources/cordis"
	"github.com/agentstation/fundingscape/internal/sources/ftportal"
	"github.com/agentstation/fundingscape/internal/sources/gepris"
	"github.com/agentstation/fundingscape/internal/sources/manual"
	"github.com/agentstation/fundingscape/internal/sources/openaire"
	"github.com/agentstation/fundingscape/internal/sources/openairebulk"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// registry maps source IDs to their connector constructors
var registry = map[sources.ID]func(config.SourceConfig) (sources.Connector, error){
	sources.ManualID:       adapt(manual.New),
	sources.CordisBulkID:   adapt(cordis.New),
	sources.OpenAIREBulkID: adapt(openairebulk.New),
	sources.FTPortalID:     adapt(ftportal.New),
	sources.OpenAIREID:     adapt(openaire.New),
	sources.GEPRISID:       adapt(gepris.New),
}

// adapt widens a constructor; a failed one yields a nil interface, not a typed nil.
func adapt[C sources.Connector](newConnector func(config.SourceConfig) (C, error)) func(config.SourceConfig) (sources.Connector, error) {
	return func(cfg config.SourceConfig) (sources.Connector, error) {
		c, err := newConnector(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Get creates a connector for id from its source configuration.
func Get(id sources.ID, cfg config.SourceConfig) (sources.Connector, error) {
	newConnector, ok := registry[id]
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "source",
			Value:   id,
			Message: fmt.Sprintf("unsupported source: %s", id),
		}
	}
	return newConnector(cfg)
}

// Has checks if a source ID has a connector implementation.
func Has(id sources.ID) bool {
	_, ok := registry[id]
	return ok
}

// List returns all source IDs that have connector implementations, sorted.
func List() []sources.ID {
	ids := make([]sources.ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connectors builds every registered connector from cfg. Disabled sources
// are included; the pipeline decides what runs. Malformed source options
// of any source are reported together, each as a *errors.ConfigError.
func Connectors(cfg *config.Config) (*sources.Sources, error) {
	out := sources.NewSources()
	var errs []error
	for _, id := range List() {
		c, err := registry[id](cfg.Source(id))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Set(c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
