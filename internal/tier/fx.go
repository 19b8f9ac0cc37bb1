package tier

import (
	"github.com/pulseform/pulseform/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier",
	fx.Provide(service.NewService),
)
