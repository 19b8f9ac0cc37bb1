// Package seed bootstraps the tier catalog so a fresh install can grant
// credits without manual setup.
package seed

import (
	"context"
	"errors"

	tierdomain "github.com/pulseform/pulseform/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var defaultTiers = []tierdomain.Tier{
	{Code: "free", Name: "Free", QuotaMonthly: 10, PriceCentsMonthly: 0},
	{Code: "starter", Name: "Starter", QuotaMonthly: 100, PriceCentsMonthly: 2900},
	{Code: "growth", Name: "Growth", QuotaMonthly: 500, PriceCentsMonthly: 9900},
}

// EnsureTiers upserts the default tier catalog.
func EnsureTiers(ctx context.Context, svc tierdomain.Service) error {
	if svc == nil {
		return errors.New("seed tier service is required")
	}
	for _, tier := range defaultTiers {
		if err := svc.Upsert(ctx, tier); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger, svc tierdomain.Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := EnsureTiers(ctx, svc); err != nil {
					return err
				}
				log.Named("seed").Info("tier catalog ensured")
				return nil
			},
		})
	}),
)
