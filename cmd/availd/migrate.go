package main

import (
	"github.com/spf13/cobra"

	"rental-availability-backend/internal/db"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			_, err = db.Init(&cfg.Database)
			return err
		},
	}
}
