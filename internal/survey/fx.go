package survey

import (
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	"github.com/pulseform/pulseform/internal/survey/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("survey.repository",
	fx.Provide(
		fx.Annotate(repository.New, fx.As(new(surveydomain.Repository))),
		fx.Annotate(repository.NewResponses, fx.As(new(surveydomain.ResponseRepository))),
	),
)
