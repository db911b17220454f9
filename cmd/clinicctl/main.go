// Command clinicctl is the operator CLI: schema migration, account creation
// and a terminal view of a patient's odontogram.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/db"
	"github.com/xclinic/dental-clinic/internal/logging"
	"github.com/xclinic/dental-clinic/internal/odontogram"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Dental clinic administration",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(odontogramCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect loads config and opens the pool; callers close it.
func connect(ctx context.Context) (config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(ctx, cfg, "clinicctl")
	if err != nil {
		return cfg, log, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return cfg, log, pool, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage clinic accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a confirmed account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")

			cfg, log, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewPgStore(pool), auth.NewLogMailer(log), cfg, log)
			user, err := svc.CreateUser(cmd.Context(), email, password, name, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Email, user.Role, user.ID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password, at least 6 characters")
	createCmd.Flags().String("name", "", "Display name of the clinic or staff member")
	createCmd.Flags().String("role", auth.RoleAdmin, "admin or staff")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")
	cmd.AddCommand(createCmd)

	return cmd
}

func odontogramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "odontogram <patient-id>",
		Short: "Print the resolved odontogram of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid patient id: %w", err)
			}
			rawClinic, _ := cmd.Flags().GetString("clinic")
			clinicID, err := uuid.Parse(rawClinic)
			if err != nil {
				return fmt.Errorf("invalid --clinic: %w", err)
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, log, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := clinic.NewService(clinic.NewPgRepository(pool, cfg.ClinicLocation), cfg, log)
			chart, err := svc.Odontogram(cmd.Context(), clinicID, patientID)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(chart)
			}
			return printChart(cmd, chart)
		},
	}
	cmd.Flags().String("clinic", "", "Clinic (owner account) id")
	cmd.Flags().Bool("json", false, "Print the chart as JSON")
	_ = cmd.MarkFlagRequired("clinic")
	return cmd
}

func printChart(cmd *cobra.Command, chart odontogram.Chart) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOTH\tNAME\tSTATUS\tRECORDS")
	for _, t := range chart.Teeth {
		marker := ""
		if t.Multiple {
			marker = " *"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d%s\n", t.Number, t.Name, t.Label, t.Records, marker)
	}
	return w.Flush()
}
