package analytics

import (
	"github.com/pulseform/pulseform/internal/analytics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics.preprocessor",
	fx.Provide(service.NewPreprocessor),
)
