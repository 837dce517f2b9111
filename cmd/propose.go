package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/microgrid/app"
	"github.com/kilianp07/microgrid/config"
	"github.com/kilianp07/microgrid/core/pool"
	"github.com/kilianp07/microgrid/infra/logger"
)

var (
	proposeCategory string
	proposePower    float64
	proposePriority int
	proposeLifetime time.Duration
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Inject a test power proposal",
	RunE:  propose,
}

func init() {
	proposeCmd.Flags().StringVar(&proposeCategory, "category", "battery", "component category (battery, ev_charger, pv_array)")
	proposeCmd.Flags().Float64Var(&proposePower, "power", 0, "target power in kW")
	proposeCmd.Flags().IntVar(&proposePriority, "priority", 10, "proposal priority, lower is more senior")
	proposeCmd.Flags().DurationVar(&proposeLifetime, "lifetime", 0, "proposal lifetime, 0 means no expiry")
	rootCmd.AddCommand(proposeCmd)
}

func propose(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	category, err := pool.ParseCategory(proposeCategory)
	if err != nil {
		return err
	}

	logg := logger.New("propose-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	go func() {
		if err := svc.Run(ctx); err != nil {
			logg.Errorf("service run: %v", err)
		}
	}()

	power := proposePower
	handle, err := svc.Pool(category).SubmitProposal(pool.ProposalSpec{
		Priority:    proposePriority,
		TargetPower: &power,
		Lifetime:    proposeLifetime,
	})
	if err != nil {
		return fmt.Errorf("submit proposal: %w", err)
	}
	logg.Infof("submitted proposal %s for %.1f kW on %s", handle.SourceID(), power, category)

	reports := svc.Pool(category).SubscribeBounds(nil)
	defer reports.Close()
	for {
		select {
		case report, ok := <-reports.C():
			if !ok {
				return nil
			}
			if target, ok := report.TargetPower(); ok {
				logg.Infof("resolved target: %.1f kW", target)
			} else {
				logg.Infof("no resolved target")
			}
		case <-ctx.Done():
			return nil
		}
	}
}
