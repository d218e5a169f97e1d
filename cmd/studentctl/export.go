package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/service"
)

type exportOptions struct {
	format  string
	out     string
	search  string
	level   string
	grade   string
	section string
	status  string
}

func newExportCmd() *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the roster in the import layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			repo, _ := e.students()
			exports := service.NewExportService(repo, nil, nil, nil, service.ExportConfig{APIPrefix: e.cfg.APIPrefix}, e.logger)
			file, err := exports.Export(cmd.Context(), models.StudentFilter{
				Search:  opts.search,
				Level:   models.EducationLevel(opts.level),
				Grade:   models.Grade(opts.grade),
				Section: models.Section(opts.section),
				Status:  models.StudentStatus(opts.status),
			}, opts.format)
			if err != nil {
				return err
			}
			return writeFile(cmd.OutOrStdout(), opts.out, file)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "xlsx", "Output format: xlsx, csv or pdf")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output path or directory (default: generated name in the working directory)")
	cmd.Flags().StringVar(&opts.search, "search", "", "Match name, CURP or registration code")
	cmd.Flags().StringVar(&opts.level, "level", "", "Education level")
	cmd.Flags().StringVar(&opts.grade, "grade", "", "Grade")
	cmd.Flags().StringVar(&opts.section, "section", "", "Section")
	cmd.Flags().StringVar(&opts.status, "status", "", "Enrollment status")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exports := service.NewExportService(nil, nil, nil, nil, service.ExportConfig{}, nil)
			file, err := exports.Template(format)
			if err != nil {
				return err
			}
			return writeFile(cmd.OutOrStdout(), out, file)
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "Template format: xlsx or csv")
	cmd.Flags().StringVar(&out, "out", "", "Output path or directory")
	return cmd
}

// writeFile stores file at out, or under its own name when out is empty or a directory.
func writeFile(w io.Writer, out string, file *service.ExportFile) error {
	target := out
	if target == "" {
		target = file.Filename
	} else if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, file.Filename)
	}
	if err := os.WriteFile(target, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	fmt.Fprintf(w, "wrote %s (%d rows, %d bytes)\n", target, file.Rows, len(file.Data))
	return nil
}
