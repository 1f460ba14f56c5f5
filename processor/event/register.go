package event

import (
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
)

// Handlers returns every handler of the package
func Handlers() []*flow.Handler {
	return []*flow.Handler{FanoutHandler(), CounterHandler(), CollectHandler(), EmitHandler()}
}

// Register adds the package handlers to catalog
func Register(catalog *loader.Catalog) error {
	for _, h := range Handlers() {
		if err := catalog.RegisterHandler(h); err != nil {
			return errors.Wrap(err, "event", "Register", "register "+h.Name)
		}
	}
	return nil
}
