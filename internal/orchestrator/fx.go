package orchestrator

import (
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	"github.com/pulseform/pulseform/internal/orchestrator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orchestrator",
	fx.Provide(service.New),
	// Construction registers the job handlers; force it before the workers
	// start pulling work.
	fx.Invoke(func(orchdomain.Service) {}),
)
