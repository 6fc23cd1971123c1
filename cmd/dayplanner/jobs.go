package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dayplanner/internal/repository"
	"dayplanner/internal/web"
)

// runOnce wires the app, runs job and prints its JSON result.
func runOnce(cmd *cobra.Command, job func(ctx context.Context, a *app) (interface{}, error)) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), jobTimeout)
	defer cancel()

	out, err := job(ctx, a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func rolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Run the midnight rollover check once for every user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (interface{}, error) {
				return a.rollover.Run(ctx)
			})
		},
	}
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Send the reminders due this minute",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (interface{}, error) {
				return a.reminders.DispatchDue(ctx)
			})
		},
	}
}

func weeklyReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly-report",
		Short: "Email every user their last seven days of analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (interface{}, error) {
				return a.analytics.SendWeekly(ctx)
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup already migrates; run it again so the command is explicit.
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			if err := repository.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Infow("schema up to date")
			return nil
		},
	}
}

func cronTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "cron-token",
		Short: "Print a bearer token for the /api/jobs endpoints",
		Long: `Print a bearer token for an external scheduler.

Example:
  curl -X POST -H "Authorization: Bearer $(dayplanner cron-token)" http://localhost:8080/api/jobs/reminders`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("CRON_SECRET")
			token, err := web.NewCronToken(secret, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
