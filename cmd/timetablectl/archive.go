package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"timetable_go/storage"

	"github.com/spf13/cobra"
)

var archiveOutput string

var archiveCmd = &cobra.Command{
	Use:     "archive",
	Short:   "Work with workbooks and audit logs archived in S3",
	GroupID: "data",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded archives, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		archives, err := e.audit.Archives(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(archives)
		}

		PrintSection("Archives")
		if len(archives) == 0 {
			PrintEmptyState("Nothing archived yet")
			return nil
		}
		rows := make([][]string, 0, len(archives))
		for _, a := range archives {
			rows = append(rows, []string{
				a.CreatedAt.Format("2006-01-02 15:04"),
				a.Kind,
				a.Status,
				fmt.Sprint(a.RecordCount),
				a.S3Key,
			})
		}
		PrintTable([]string{"Created", "Kind", "Status", "Records", "Key"}, rows)
		return nil
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <key|url>",
	Short: "Download an archived object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, key, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}

		body, err := store.Download(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("download %s: %w", key, err)
		}
		defer body.Close()

		out := archiveOutput
		if out == "" {
			out = path.Base(key)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := io.Copy(f, body)
		if err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		PrintSuccess(fmt.Sprintf("Saved %s (%d bytes)", out, n))
		return nil
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm <key|url>",
	Short: "Delete an archived object from the bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, key, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		if err := store.Delete(cmd.Context(), key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		PrintSuccess("Deleted " + key)
		return nil
	},
}

// openArchive accepts either a bare object key or the URL stored with an
// archive record.
func openArchive(cmd *cobra.Command, ref string) (*storage.ArchiveStore, string, error) {
	e, err := openEnv()
	if err != nil {
		return nil, "", err
	}
	defer e.close()

	key := ref
	if strings.HasPrefix(ref, "https://") {
		if key = storage.KeyFromURL(ref); key == "" {
			return nil, "", fmt.Errorf("%s is not an S3 object URL", ref)
		}
	}
	store, err := storage.NewArchiveStore(cmd.Context(), e.cfg.AWSRegion, e.cfg.S3BucketName)
	if err != nil {
		return nil, "", err
	}
	return store, key, nil
}

func init() {
	archiveGetCmd.Flags().StringVarP(&archiveOutput, "output", "o", "", "Output file (default: object name)")
	archiveCmd.AddCommand(archiveListCmd, archiveGetCmd, archiveRmCmd)
}
