// Package nodes assembles the built-in node handlers into a dispatcher.
package nodes

import (
	"log/slog"
	"net/http"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/action"
	"github.com/dukex/dagflow/pkg/nodes/ai"
	"github.com/dukex/dagflow/pkg/nodes/conditional"
	"github.com/dukex/dagflow/pkg/nodes/custom"
	"github.com/dukex/dagflow/pkg/nodes/httprequest"
	lognode "github.com/dukex/dagflow/pkg/nodes/log"
	"github.com/dukex/dagflow/pkg/nodes/loop"
	"github.com/dukex/dagflow/pkg/nodes/trigger"
	"github.com/dukex/dagflow/pkg/workflow"
)

// Dependencies are the external collaborators of the built-in handlers.
// Nil fields fall back to defaults: the default HTTP client, a logging
// integration, and no AI client or sandbox.
type Dependencies struct {
	HTTPClient  *http.Client
	Integration action.Integration
	AI          ai.Client
	Sandbox     custom.Sandbox
	Logger      *slog.Logger
}

// Register binds a handler for every node kind.
func Register(dispatcher *workflow.Dispatcher, deps Dependencies) {
	integration := deps.Integration
	if integration == nil {
		integration = lognode.NewIntegration(deps.Logger)
	}

	dispatcher.Register(models.NodeKindTrigger, trigger.NewHandler())
	dispatcher.Register(models.NodeKindAction, action.NewHandler(httprequest.NewHandler(deps.HTTPClient), integration))
	dispatcher.Register(models.NodeKindCondition, conditional.NewHandler())
	dispatcher.Register(models.NodeKindLoop, loop.NewHandler())
	dispatcher.Register(models.NodeKindAI, ai.NewHandler(deps.AI))
	dispatcher.Register(models.NodeKindCustom, custom.NewHandler(deps.Sandbox, deps.Logger))
}

// NewDispatcher returns a dispatcher with the built-in handlers registered.
func NewDispatcher(deps Dependencies) *workflow.Dispatcher {
	dispatcher := workflow.NewDispatcher()
	Register(dispatcher, deps)

	return dispatcher
}
