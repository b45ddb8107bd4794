package app

import (
	"github.com/riseselfesteem/convosync/internal/config"
	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/module"
	"github.com/riseselfesteem/convosync/internal/modules/conversations"
	"github.com/riseselfesteem/convosync/internal/pubsub"
)

// Dependencies holds the core services that are required by the application's
// modules. This struct is passed from the main application entrypoint to wire
// up the modules.
type Dependencies struct {
	Publisher  pubsub.Publisher
	Subscriber pubsub.Subscriber
	Directory  domain.Directory
	Cfg        config.Provider
}

// NewModules creates and returns the list of all active modules for the
// application. This is the single source of truth for which features are
// enabled.
func NewModules(deps Dependencies) []module.Module {
	return []module.Module{
		// Add new application modules here.
		conversations.New(conversations.Dependencies{
			Publisher:  deps.Publisher,
			Subscriber: deps.Subscriber,
			Directory:  deps.Directory,
			Cfg:        deps.Cfg,
		}),
	}
}
