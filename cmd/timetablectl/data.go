package main

import (
	"fmt"
	"os"
	"path/filepath"

	"timetable_go/database/seeders"
	"timetable_go/models"
	"timetable_go/services"
	"timetable_go/storage"

	"github.com/spf13/cobra"
)

var (
	importForce   bool
	exportOutput  string
	exportArchive bool
)

var importCmd = &cobra.Command{
	Use:     "import <file>",
	Short:   "Replace the roster from a master grid (.xlsx or .csv)",
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()

		importer := services.NewImportService(e.reconciler, e.normalizer)
		report, err := importer.ImportFile(cmd.Context(), filepath.Base(args[0]), f, e.options(importForce))
		if err != nil {
			if ce, ok := services.IsConflictError(err); ok && !jsonOutput {
				PrintError(err.Error())
				printConflicts(ce.Conflicts)
				fmt.Println()
				PrintWarning("Nothing was written. Re-run with --force to import anyway.")
				return fmt.Errorf("%d conflicts", len(ce.Conflicts))
			}
			return err
		}

		if jsonOutput {
			return outputJSON(report)
		}

		PrintSuccess(fmt.Sprintf("Imported %d teachers and %d slots", report.TeachersImported, report.SlotsImported))
		if report.Forced && len(report.Conflicts) > 0 {
			PrintWarning(fmt.Sprintf("Forced through %d conflicts", len(report.Conflicts)))
			printConflicts(report.Conflicts)
		}
		if len(report.DoubleBookings) > 0 {
			PrintWarning(fmt.Sprintf("%d teachers are booked into two classes at once", len(report.DoubleBookings)))
		}
		for _, w := range report.Warnings {
			PrintWarning(fmt.Sprintf("row %d (%s): %s", w.Row, w.Teacher, w.Message))
		}
		if len(report.Unparsed) > 0 {
			PrintSection("Unreadable cells")
			rows := make([][]string, 0, len(report.Unparsed))
			for _, u := range report.Unparsed {
				rows = append(rows, []string{fmt.Sprint(u.Row), u.Teacher, u.Day, fmt.Sprint(u.Period), u.Text})
			}
			PrintTable([]string{"Row", "Teacher", "Day", "Period", "Text"}, rows)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:       "export <master|teachers|classes>",
	Short:     "Write a timetable workbook",
	GroupID:   "data",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(services.ExportMaster), string(services.ExportTeachers), string(services.ExportClasses)},
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		exporter := services.NewExportService(e.store)
		if exportArchive {
			if e.cfg.S3BucketName == "" {
				return fmt.Errorf("--archive needs S3_BUCKET_NAME")
			}
			archiveStore, err := storage.NewArchiveStore(ctx, e.cfg.AWSRegion, e.cfg.S3BucketName)
			if err != nil {
				return err
			}
			exporter.SetArchiver(archiveStore, e.audit)
		}

		file, err := exporter.Export(ctx, services.ExportKind(args[0]))
		if err != nil {
			return err
		}

		out := exportOutput
		if out == "" {
			out = file.FileName
		}
		if err := os.WriteFile(out, file.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}

		var archive *models.ExportArchive
		if exportArchive {
			if archive, err = exporter.Archive(ctx, file); err != nil {
				return err
			}
		}

		if jsonOutput {
			return outputJSON(map[string]interface{}{
				"file":    out,
				"kind":    file.Kind,
				"records": file.Records,
				"archive": archive,
			})
		}
		PrintSuccess(fmt.Sprintf("Wrote %s (%d records)", out, file.Records))
		if archive != nil {
			PrintLabelValue("Archived", archive.URL)
		}
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Insert the default grade sections and sample teachers",
	GroupID: "ops",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()
		if err := seeders.SeedAll(cmd.Context(), e.store); err != nil {
			return err
		}
		PrintSuccess("Seed data in place")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Create or update the database tables",
	GroupID: "ops",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// openEnv migrates unless SKIP_MIGRATE is set
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()
		if e.cfg.SkipMigrate {
			PrintWarning("SKIP_MIGRATE is set; tables were left as they are")
			return nil
		}
		PrintSuccess(fmt.Sprintf("Migrated %s database", e.cfg.DBDriver))
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Import even when the grid has conflicts")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: generated name)")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "Also upload the workbook to the S3 archive")
}
