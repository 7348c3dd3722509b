// Package export renders an analysis result as a downloadable file.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/skillscope/skillscope/internal/analysis"

	"github.com/xuri/excelize/v2"
)

var header = []string{"Classement", "Compétence", "Fréquence"}

// CSV writes the ranked skill table as a comma-separated file.
func CSV(w io.Writer, query string, result *analysis.Result) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i, sc := range result.Skills {
		row := []string{fmt.Sprint(i + 1), sc.Skill, fmt.Sprint(sc.Frequency)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv for %q: %w", query, err)
	}
	return nil
}

// XLSX writes the ranked skill table as a single-sheet workbook named after
// the query.
func XLSX(w io.Writer, query string, result *analysis.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Compétences"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &[]any{header[0], header[1], header[2]}); err != nil {
		return fmt.Errorf("writing xlsx header: %w", err)
	}
	if err := f.SetCellValue(sheet, "E1", fmt.Sprintf("Recherche : %s", query)); err != nil {
		return fmt.Errorf("writing query cell: %w", err)
	}
	if err := f.SetCellValue(sheet, "E2", fmt.Sprintf("Offres analysées : %d", result.ActualOffersCount)); err != nil {
		return fmt.Errorf("writing offers cell: %w", err)
	}

	for i, sc := range result.Skills {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &[]any{i + 1, sc.Skill, sc.Frequency}); err != nil {
			return fmt.Errorf("writing xlsx row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook for %q: %w", query, err)
	}
	return nil
}
