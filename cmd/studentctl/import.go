package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/student-registry-api/internal/service"
)

func newImportCmd() *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import students from an xlsx or csv sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			repo, students := e.students()
			imports := service.NewImportService(repo, students, nil, e.logger, service.ImportServiceConfig{
				MaxFileSize:        e.cfg.Import.MaxFileSizeBytes,
				Timeout:            e.cfg.Import.Timeout,
				AllowedMIMEs:       e.cfg.Import.AllowedMIMEs,
				RegistrationPrefix: e.cfg.Registration.Prefix,
			})

			result, err := imports.Import(cmd.Context(), filepath.Base(args[0]), data)
			if result != nil {
				printImportResult(cmd.OutOrStdout(), result, showErrors)
			}
			if err != nil {
				return err
			}
			if result.ErrorCount > 0 {
				return fmt.Errorf("%d rows rejected", result.ErrorCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showErrors, "errors", true, "Print every rejected row")
	return cmd
}

func printImportResult(w io.Writer, result *service.ImportResult, showErrors bool) {
	fmt.Fprintf(w, "format=%s imported=%d rejected=%d skipped=%d duration=%dms\n",
		result.Format, result.SuccessCount, result.ErrorCount, result.SkippedCount, result.DurationMs)
	for _, record := range result.ImportedRecords {
		fmt.Fprintf(w, "  + %s %s %s (%s)\n", record.RegistrationCode, record.GivenName, record.PaternalSurname, record.CURP)
	}
	if !showErrors {
		return
	}
	for _, line := range result.Errors {
		fmt.Fprintf(w, "  ! %s\n", line)
	}
}
