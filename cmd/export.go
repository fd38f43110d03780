/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/logging"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
)

// exportCmd writes a JSON-Lines snapshot of every user to object storage.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all users to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.Init("userhub-export", cfg.LogLevel, cfg.AppEnv)
		ctx := cmd.Context()

		prefix, err := cmd.Flags().GetString("prefix")
		if err != nil {
			return err
		}
		if prefix == "" {
			prefix = cfg.Export.Prefix
		}

		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		objects, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}

		users := services.NewUserService(store.NewDB(dbConn), store.NewUserRepository())
		result, err := services.NewExportService(users, objects, prefix).Export(ctx)
		if err != nil {
			return err
		}

		logger.Info("export complete", "bucket", result.Bucket, "key", result.Key, "count", result.Count)
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s (%d users)\n", result.Bucket, result.Key, result.Count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("prefix", "", "object key prefix (defaults to EXPORT_PREFIX)")
}
