package jobs

import (
	"context"

	"github.com/pulseform/pulseform/internal/config"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	"github.com/pulseform/pulseform/internal/jobs/service"
	"go.uber.org/fx"
)

var Module = fx.Module("jobs",
	fx.Provide(
		service.NewQueue,
		func(q *service.Queue) jobsdomain.Queue { return q },
	),
	fx.Invoke(runWorkers),
)

func runWorkers(lc fx.Lifecycle, cfg config.Config, queue *service.Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := queue.RecoverStale(ctx); err != nil {
				return err
			}

			workerCtx, cancel := context.WithCancel(context.Background())
			for i := 0; i < cfg.Jobs.Workers; i++ {
				go queue.Run(workerCtx)
			}

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
