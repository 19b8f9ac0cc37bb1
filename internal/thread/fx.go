package thread

import (
	"github.com/pulseform/pulseform/internal/thread/service"
	"go.uber.org/fx"
)

var Module = fx.Module("thread.registry",
	fx.Provide(service.NewRegistry),
)
