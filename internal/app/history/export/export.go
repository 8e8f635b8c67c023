// Package export writes session history to spreadsheet files.
package export

import (
	"fmt"
	"time"

	"github.com/tealeg/xlsx"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// ToExcel writes the sessions to an xlsx workbook at outputFilePath.
func ToExcel(sessions []model.SessionRecord, outputFilePath string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Sessions")
	if err != nil {
		return apperrors.Wrapf(err, "failed to create sheet")
	}

	headerRow := sheet.AddRow()
	headerRow.AddCell().Value = "ID"
	headerRow.AddCell().Value = "Strategy"
	headerRow.AddCell().Value = "Started At"
	headerRow.AddCell().Value = "Duration (s)"
	headerRow.AddCell().Value = "Chunks"
	headerRow.AddCell().Value = "Text"
	headerRow.AddCell().Value = "Error Message"

	for _, s := range sessions {
		row := sheet.AddRow()
		row.AddCell().Value = s.ID
		row.AddCell().Value = s.Strategy
		row.AddCell().Value = s.StartedAt.Format(time.RFC3339)
		row.AddCell().Value = fmt.Sprintf("%.2f", s.DurationSecs)
		row.AddCell().Value = fmt.Sprint(s.Chunks)
		row.AddCell().Value = s.Text
		row.AddCell().Value = s.ErrorMessage
	}

	if err := file.Save(outputFilePath); err != nil {
		return apperrors.Wrapf(err, "failed to save workbook %s", outputFilePath)
	}
	return nil
}
