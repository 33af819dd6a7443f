// cmd/shieldctl/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/database"
)

var (
	version = "dev"

	outputFlag string

	cfg *config.Config
	db  *gorm.DB
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shieldctl",
		Short: "Operator tooling for the CreatorShield engine",
		Long: `shieldctl runs the on-demand operator tasks against the CreatorShield
database: deadline reports, the overdue premium sweep and token issuance
for local testing.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(newDeadlinesCmd())
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// openDB connects and migrates on first use.
func openDB() (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}
	conn, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(conn); err != nil {
		database.Close(conn)
		return nil, err
	}
	db = conn
	return db, nil
}
