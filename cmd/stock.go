package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/farellandr/ucshop/config"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/middleware"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/stock"
)

var cliUploadConfig = helpers.UploadConfig{
	MaxSizeBytes:     64 * 1024 * 1024,
	AllowedMimeTypes: helpers.DefaultCodeListUploadConfig.AllowedMimeTypes,
}

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Manage stock codes",
	}
	cmd.AddCommand(stockImportCmd())
	return cmd
}

func stockImportCmd() *cobra.Command {
	var productFlag, fileFlag string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import codes for a product from a text file, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := uuid.Parse(productFlag)
			if err != nil {
				return fmt.Errorf("invalid --product: %w", err)
			}

			f, err := os.Open(fileFlag)
			if err != nil {
				return err
			}
			defer f.Close()

			codes, err := helpers.ReadLines(f, cliUploadConfig)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", fileFlag, err)
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := config.InitDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			svc := stock.NewService(db, audit.NewGormRecorder(db, log), log)
			result, err := svc.Import(context.Background(), productID, codes, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created: %d\nduplicates: %d\n", result.Created, len(result.Duplicates))
			for _, code := range result.Duplicates {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&productFlag, "product", "", "Product ID")
	cmd.Flags().StringVar(&fileFlag, "file", "", "Path to a text file of codes")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagRequired("file")
	return cmd
}

// tokenCmd signs a bearer token for an existing user, for operators and
// local testing.
func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := config.InitDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			var user models.User
			if err := db.First(&user, "id = ?", userID).Error; err != nil {
				return fmt.Errorf("failed to load user: %w", err)
			}

			token, err := middleware.IssueToken(cfg.JWTSecret, models.Actor{ID: user.ID, Role: user.Role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
