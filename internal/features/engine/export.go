package engine

import (
	"fmt"
	"time"

	"go-erp/internal/features/approval"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Approvals"

var exportColumns = []string{
	"Request ID", "Flow", "Module", "Trigger", "Document Type", "Document ID",
	"Submitted By", "Submitted At", "Status", "Step", "Total Steps", "Resolved By", "Resolved At", "Reason",
}

// ExportToExcel renders requests as an xlsx workbook, one row per request.
func ExportToExcel(reqs []approval.ApprovalRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, col)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for rowIdx, r := range reqs {
		resolvedAt := ""
		if r.ResolvedAt != nil {
			resolvedAt = r.ResolvedAt.Format(time.DateTime)
		}
		row := []any{
			r.ID, r.FlowName, string(r.Module), string(r.Trigger), r.DocumentType, r.DocumentID,
			r.SubmittedBy, r.SubmittedAt.Format(time.DateTime), string(r.Status),
			r.CurrentStep, r.TotalSteps(), r.ResolvedBy, resolvedAt, r.Reason,
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", rowIdx+2, err)
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(exportSheet, col, col, 18)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
