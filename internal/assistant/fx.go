package assistant

import (
	"github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/assistant/openaiclient"
	"github.com/pulseform/pulseform/internal/assistant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assistant",
	fx.Provide(
		fx.Annotate(openaiclient.New, fx.As(new(domain.Client))),
		service.NewRunner,
	),
)
