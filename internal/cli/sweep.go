package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parnass/internal/modules/sponsorship"
	"parnass/internal/repository"
)

// newSweepCmd runs one expiry pass, for deployments that drive it from cron
// instead of the in-process sweeper.
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire elapsed reservations and purge stale idempotency keys once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			publisher, err := a.publisher()
			if err != nil {
				return err
			}
			defer publisher.Close()

			ctx := cmd.Context()
			svc := sponsorship.NewService(
				repository.NewReservationRepository(a.db),
				repository.NewSettingsRepository(a.db),
				nil, publisher, nil, a.log,
			)
			expired, err := sponsorship.NewSweeper(svc, sponsorship.SweeperConfig{
				Interval:  a.cfg.Sweep.Interval,
				BatchSize: a.cfg.Sweep.BatchSize,
			}).RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			purged, err := repository.NewIdempotencyRepository(a.db).PurgeExpired(ctx)
			if err != nil {
				return fmt.Errorf("purge idempotency keys: %w", err)
			}

			a.log.Info("sweep completed", zap.Int("expired", expired), zap.Int64("idempotency_purged", purged))
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d idempotency_purged=%d\n", expired, purged)
			return nil
		},
	}
	return cmd
}
