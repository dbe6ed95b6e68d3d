// Package commands implements custodianctl, the operator CLI: schema
// migrations, read-only ledger inspection and development token minting.
package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"custodian/internal/ledger"
	"custodian/internal/platform/config"
	"custodian/internal/platform/logger"
	"custodian/internal/platform/postgres"
)

type app struct {
	configPath string
	cfg        config.Config
	log        *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "custodianctl",
		Short:         "Operate the custodian change-request ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", ".", "directory containing config.yaml")

	root.AddCommand(
		newMigrateCmd(a),
		newVersionCmd(a),
		newHistoryCmd(a),
		newTokenCmd(a),
	)
	return root
}

// openDB connects to the configured database. Every database-backed command
// requires the postgres store.
func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.cfg.Database.URL == "" {
		return nil, fmt.Errorf("custodianctl: database.url is not configured")
	}
	return postgres.Open(ctx, a.cfg.Database)
}

func (a *app) openLedger(ctx context.Context) (*ledger.Service, func(), error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := ledger.NewService(ledger.NewPostgresStores(db, a.cfg.Database.TxTimeout))
	return svc, func() { _ = db.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
