package usagelog

import (
	"github.com/pulseform/pulseform/internal/usagelog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usagelog.service",
	fx.Provide(service.NewService),
)
