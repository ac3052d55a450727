package main

import (
	"errors"
	"fmt"

	"timetable_go/config"
	"timetable_go/database"
	"timetable_go/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "timetablectl",
	Version: "dev",
	Short:   "Operate the school timetable from the command line",
	Long: `timetablectl works directly on the timetable database configured for the
API server (.env or SSM). It imports and exports master grids, reports
conflicts, coverage gaps and teacher load, and can follow live updates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Timetable data:"},
		&cobra.Group{ID: "reports", Title: "Reports:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)
	rootCmd.AddCommand(importCmd, exportCmd, archiveCmd, conflictsCmd, gapsCmd, loadCmd, seedCmd, migrateCmd, watchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env is the service graph a command works with.
type env struct {
	cfg        *config.Config
	store      services.TimetableStore
	reconciler *services.SlotReconciler
	timetable  *services.TimetableService
	normalizer *services.SubjectNormalizer
	audit      *services.AuditService
}

// openEnv loads the configuration and opens the configured SQL database.
// Writes are recorded in the audit trail under the actor "cli".
func openEnv() (*env, error) {
	config.LoadConfig()
	cfg := config.AppConfig
	if cfg.DBDriver == "memory" {
		return nil, errors.New("DB_DRIVER=memory keeps no data between runs; point timetablectl at sqlite, mysql or postgres")
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.SkipMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	database.DB = db

	normalizer, err := services.LoadSubjectNormalizer(cfg.SubjectSynonymsFile)
	if err != nil {
		return nil, err
	}

	store := database.NewGormStore(db)
	audit := services.NewAuditService(db, nil)
	reconciler := services.NewSlotReconciler(store)
	reconciler.SetAuditRecorder(audit)

	return &env{
		cfg:        cfg,
		store:      store,
		reconciler: reconciler,
		timetable:  services.NewTimetableService(reconciler, normalizer),
		normalizer: normalizer,
		audit:      audit,
	}, nil
}

func (e *env) options(force bool) services.ReconcileOptions {
	return services.ReconcileOptions{Force: force, Actor: "cli"}
}

func (e *env) close() {
	database.Close()
}

func printConflicts(conflicts []services.Conflict) {
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		names := ""
		for i, t := range c.Teachers {
			if i > 0 {
				names += "، "
			}
			if t.Name != "" {
				names += t.Name
			} else {
				names += t.ID
			}
		}
		rows = append(rows, []string{
			string(c.Type),
			c.Day,
			fmt.Sprint(c.Period),
			services.FormatGradeSection(c.Grade, c.Section),
			names,
		})
	}
	PrintTable([]string{"Type", "Day", "Period", "Class", "Teachers"}, rows)
}
