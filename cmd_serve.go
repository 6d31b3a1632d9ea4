package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/parquetlayout/crdb"
	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/http_server"
	"github.com/danthegoodman1/parquetlayout/migrations"
	"github.com/danthegoodman1/parquetlayout/optimizer"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		catalogDSN string
		migrate    bool
		root       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve inspect, simulate and optimize over HTTP",
		Long: `Serve POST /inspect, POST /simulate, POST /optimize and GET /files on an h2c
listener. With --catalog-dsn, optimize runs record their files in the
layout_files table instead of per-directory manifests. Request paths on local
disk must resolve under --root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			var pool *pgxpool.Pool
			if catalogDSN != "" {
				var err error
				if pool, err = openCatalog(ctx, catalogDSN, migrate); err != nil {
					return err
				}
				defer pool.Close()
			}

			s := http_server.NewHTTPServer(http_server.Options{
				Store:    datastore.NewDataStore(),
				Pool:     pool,
				Defaults: optimizer.DefaultConfig(),
				Root:     root,
			})
			if err := s.Start(addr); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Warn().Msg("received shutdown signal!")

			// For AWS ALB needing some time to de-register pod
			sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
			logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))
			time.Sleep(time.Second * time.Duration(sleepTime))

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("failed to shutdown HTTP server")
				return err
			}
			logger.Info().Msg("successfully shutdown HTTP server")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":"+utils.HTTP_PORT, "listen address")
	cmd.Flags().StringVar(&catalogDSN, "catalog-dsn", utils.CRDB_DSN, "CockroachDB DSN for the layout catalog, empty to disable")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply catalog migrations at startup")
	cmd.Flags().StringVar(&root, "root", utils.DATA_ROOT, "directory request paths are confined to, empty allows any local path")
	return cmd
}

// openCatalog connects to the layout catalog and makes sure its schema is
// current, applying migrations when migrate is set.
func openCatalog(ctx context.Context, dsn string, migrate bool) (*pgxpool.Pool, error) {
	if migrate {
		n, err := migrations.RunMigrations(dsn)
		if err != nil {
			return nil, fmt.Errorf("error running migrations: %w", err)
		}
		logger.Info().Int("applied", n).Msg("catalog migrations applied")
	} else if err := migrations.CheckMigrations(dsn); err != nil {
		return nil, fmt.Errorf("error checking migrations: %w", err)
	}
	pool, err := crdb.ConnectToDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to CRDB: %w", err)
	}
	return pool, nil
}
