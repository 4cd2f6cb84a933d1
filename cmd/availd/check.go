package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/db"
	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/index"
	"rental-availability-backend/internal/parse"
	"rental-availability-backend/internal/reservation"
	"rental-availability-backend/internal/store"
)

type checkOutput struct {
	Availability domain.AvailabilityResult      `json:"availability"`
	Conflicts    domain.ConflictReport          `json:"conflicts"`
	Alternatives []domain.AlternativeSuggestion `json:"alternatives,omitempty"`
}

func newCheckCmd(load loader) *cobra.Command {
	var (
		resourceID string
		start, end string
		quantity   string
		withAlts   bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one resource against the persisted bookings and print the answer as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			iv, err := parse.Interval(start, end, nil)
			if err != nil {
				return err
			}
			qty, err := parse.Quantity(quantity)
			if err != nil {
				return err
			}

			gormDB, err := db.Open(&cfg.Database)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			occs, err := store.NewGormStore(gormDB, logger).LoadActive(ctx)
			if err != nil {
				return err
			}
			engine := reservation.NewEngine(index.New(), catalog.NewGormReader(gormDB), domain.SystemClock{}, engineConfig(cfg.Engine), logger)
			if err := engine.Restore(occs); err != nil {
				return err
			}

			req := domain.ReservationRequest{ResourceID: resourceID, Quantity: qty, Interval: iv}
			var out checkOutput
			if out.Availability, err = engine.CheckAvailability(ctx, req); err != nil {
				return err
			}
			if out.Conflicts, err = engine.DetectConflicts(ctx, req); err != nil {
				return err
			}
			if withAlts && !out.Availability.FullyAvailable {
				if out.Alternatives, err = engine.SuggestAlternatives(ctx, req); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "equipment id")
	cmd.Flags().StringVar(&start, "start", "", "interval start (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "interval end (exclusive)")
	cmd.Flags().StringVar(&quantity, "quantity", "1", "units requested")
	cmd.Flags().BoolVar(&withAlts, "alternatives", false, "suggest alternatives when unavailable")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
