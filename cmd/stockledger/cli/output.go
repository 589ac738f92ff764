package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// WriteImportReport prints the outcome of a catalog import run.
func WriteImportReport(w io.Writer, report catalog.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", report.RunID)
	fmt.Fprintf(tw, "source\t%s\n", report.Source)
	fmt.Fprintf(tw, "fetched\t%d\n", report.Fetched)
	fmt.Fprintf(tw, "created\t%d\n", report.Created)
	fmt.Fprintf(tw, "updated\t%d\n", report.Updated)
	fmt.Fprintf(tw, "skipped\t%d\n", report.Skipped)
	fmt.Fprintf(tw, "failed\t%d\n", report.Failed)
	fmt.Fprintf(tw, "duration\t%s\n", report.Duration)
	return tw.Flush()
}

// WriteMigrationStatus prints the schema version and pending migrations.
func WriteMigrationStatus(w io.Writer, status *db.MigrationStatus) error {
	if status == nil {
		_, err := fmt.Fprintln(w, "no migration status")
		return err
	}
	if _, err := fmt.Fprintf(w, "current version: %d of %d\n", status.CurrentVersion, status.TotalMigrations); err != nil {
		return err
	}
	if !status.HasPendingChanges {
		_, err := fmt.Fprintln(w, "schema is up to date")
		return err
	}
	_, err := fmt.Fprintf(w, "pending: %v\n", status.PendingMigrations)
	return err
}
