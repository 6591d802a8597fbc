package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/service/identity"
	"github.com/sandevgo/kaidesk/internal/storage/sqlite"
	"github.com/sandevgo/kaidesk/pkg/log"
	"github.com/spf13/cobra"
)

var (
	idColumn     string
	nameColumn   string
	secretColumn string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage subject records",
}

var recordsImportCmd = &cobra.Command{
	Use:          "import <file.csv>",
	Short:        "Import or update subject records from CSV",
	Long:         `Each row becomes a subject record keyed by upper-cased column names. Plain-text secrets are hashed before storage.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := parseRecords(f, idColumn, nameColumn, secretColumn)
		if err != nil {
			return err
		}

		db, recCfg, err := openRecordStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		subjects := sqlite.NewSubjects(db, recCfg.Timeout)
		for _, row := range rows {
			if err := subjects.Upsert(ctx, row); err != nil {
				return fmt.Errorf("record %s: %w", row.SubjectID, err)
			}
		}

		log.FromCtx(ctx).Info().Int("records", len(rows)).Str("dsn", recCfg.DSN).Msg("records imported")
		return nil
	},
}

var recordsSecretCmd = &cobra.Command{
	Use:          "set-secret <identifier> <secret>",
	Short:        "Set the step-up secret of a subject",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		hash, err := identity.HashSecret(args[1])
		if err != nil {
			return err
		}

		db, recCfg, err := openRecordStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := sqlite.NewSubjects(db, recCfg.Timeout).SetSecretHash(ctx, args[0], hash); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("no subject with identifier %q", args[0])
			}
			return err
		}
		log.FromCtx(ctx).Info().Str("subject", args[0]).Msg("step-up secret updated")
		return nil
	},
}

// parseRecords reads a CSV export with a header row. The secret column, when
// present, is hashed and never stored as an attribute.
func parseRecords(r io.Reader, idCol, nameCol, secretCol string) ([]sqlite.SubjectRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	idCol = strings.ToUpper(idCol)
	nameCol = strings.ToUpper(nameCol)
	secretCol = strings.ToUpper(secretCol)

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	if _, ok := index[idCol]; !ok {
		return nil, fmt.Errorf("identifier column %q not found", idCol)
	}
	if _, ok := index[nameCol]; !ok {
		return nil, fmt.Errorf("name column %q not found", nameCol)
	}

	var rows []sqlite.SubjectRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := sqlite.SubjectRow{
			SubjectID:   strings.TrimSpace(record[index[idCol]]),
			DisplayName: strings.TrimSpace(record[index[nameCol]]),
			Attributes:  core.Record{},
		}
		if row.SubjectID == "" {
			continue
		}

		for i, col := range header {
			v := strings.TrimSpace(record[i])
			if v == "" {
				continue
			}
			if col == secretCol {
				if row.SecretHash, err = identity.HashSecret(v); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				continue
			}
			row.Attributes[col] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func init() {
	recordsImportCmd.Flags().StringVar(&idColumn, "id-column", "STUDENT_NUMBER", "column holding the subject identifier")
	recordsImportCmd.Flags().StringVar(&nameColumn, "name-column", "STUDENT_NAME", "column holding the display name")
	recordsImportCmd.Flags().StringVar(&secretColumn, "secret-column", "SECRET", "column holding plain-text step-up secrets")

	recordsCmd.AddCommand(recordsImportCmd, recordsSecretCmd)
	rootCmd.AddCommand(recordsCmd)
}
