package main

import (
	"fmt"
	"time"

	"pulse-backend/internal/app"
	authdomain "pulse-backend/internal/auth/domain"
	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/dto"
	"pulse-backend/pkg/database"
	"pulse-backend/pkg/vault"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.NewPostgresConnection(loadConfig())
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := app.Migrate(db); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Sync one user/platform pair now and print the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		platform, _ := cmd.Flags().GetString("platform")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		if !connectiondomain.Platform(platform).Valid() {
			return fmt.Errorf("%w: %q", connectiondomain.ErrUnknownPlatform, platform)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pair := domain.Pair{UserID: userID, Platform: connectiondomain.Platform(platform)}
		outcome := a.Worker.Sync(cmd.Context(), pair, domain.TriggerManual)
		return printJSON(dto.NewOutcomeResponse(outcome))
	},
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List pairs the scheduler would sync right now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pairs, err := a.Scheduler.DuePairs(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		for _, p := range pairs {
			fmt.Println(p.Key())
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired, unretained content once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Cleanup.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d expired items\n", deleted)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a service token for a consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		consumer, _ := cmd.Flags().GetString("consumer")
		rawScope, _ := cmd.Flags().GetString("scope")
		if consumer == "" {
			return fmt.Errorf("--consumer is required")
		}
		scope, err := authdomain.ParseScope(rawScope)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		token, err := a.Auth.IssueServiceToken(consumer, scope)
		if err != nil {
			return err
		}
		return printJSON(token)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age identity for credential encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, recipient, err := vault.GenerateAgeIdentity()
		if err != nil {
			return err
		}
		fmt.Printf("# public key: %s\n", recipient)
		fmt.Printf("CREDENTIAL_AGE_IDENTITY=%s\n", identity)
		return nil
	},
}

func init() {
	triggerCmd.Flags().String("user", "", "User ID")
	triggerCmd.Flags().String("platform", "", "Platform: slack, gmail, imap, google_calendar or notion")
	tokenCmd.Flags().String("consumer", "", "Consumer name embedded in the token")
	tokenCmd.Flags().String("scope", string(authdomain.ScopeRead), "Token scope: read or admin")
}
