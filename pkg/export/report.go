// Package export renders inspection reports as XLSX workbooks.
package export

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// Sheet names in workbook order.
const (
	SummarySheet      = "Summary"
	FindingsSheet     = "Findings"
	ImprovementsSheet = "Improvements"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	findingsHeader     = []string{"Room", "Defect Type", "Severity", "Description", "Source"}
	improvementsHeader = []string{"Priority", "Defect Type", "Action", "Estimated Cost (INR)", "Affected Rooms", "Defects"}
)

// ReportWorkbook builds the buyer report for one property. A pending
// property yields a workbook with only the listing details filled in.
func ReportWorkbook(report *models.PropertyReport) ([]byte, error) {
	if report == nil || report.Property == nil {
		return nil, fmt.Errorf("report has no property")
	}

	f := excelize.NewFile()
	// Don't defer Close(): WriteTo needs the file open.

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename default sheet: %w", err)
	}
	for _, name := range []string{FindingsSheet, ImprovementsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{f: f, headerStyle: headerStyle}
	w.summary(report)
	w.findings(report.Findings)
	w.improvements(report.Improvements)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}

	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first error so the sheet builders read straight through.
type sheetWriter struct {
	f           *excelize.File
	headerStyle int
	err         error
}

func (w *sheetWriter) set(sheet string, col, row int, value any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellValue(sheet, cell, value); err != nil {
		w.err = fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
	}
}

func (w *sheetWriter) header(sheet string, headers []string, widths []float64) {
	for i, h := range headers {
		w.set(sheet, i+1, 1, h)
	}
	if w.err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := w.f.SetCellStyle(sheet, "A1", last, w.headerStyle); err != nil {
		w.err = fmt.Errorf("failed to style %s header: %w", sheet, err)
		return
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.f.SetColWidth(sheet, col, col, width); err != nil {
			w.err = fmt.Errorf("failed to set column width: %w", err)
			return
		}
	}
	if err := w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		w.err = fmt.Errorf("failed to freeze %s header: %w", sheet, err)
	}
}

func (w *sheetWriter) summary(report *models.PropertyReport) {
	p := report.Property
	rows := [][2]any{
		{"Property ID", p.ID},
		{"Address", p.Address},
		{"City", p.City},
		{"State", p.State},
		{"Pincode", p.Pincode},
		{"Property Type", p.PropertyType},
		{"Bedrooms", p.Bedrooms},
		{"Bathrooms", p.Bathrooms},
		{"Square Feet", p.SquareFeet},
		{"Price (INR)", p.Price},
		{"Status", string(p.Status)},
	}
	if p.InspectedAt != nil {
		rows = append(rows, [2]any{"Inspected At", p.InspectedAt.Format("2006-01-02 15:04:05")})
	}
	if p.RiskScore != nil {
		rows = append(rows, [2]any{"Risk Score", *p.RiskScore})
	}
	if p.RiskLevel != nil {
		rows = append(rows, [2]any{"Risk Level", string(*p.RiskLevel)})
	}
	if p.CostMin != nil && p.CostMax != nil {
		rows = append(rows, [2]any{"Renovation Cost (INR)", fmt.Sprintf("%d - %d", *p.CostMin, *p.CostMax)})
	}
	if s := report.Summary; s != nil {
		rows = append(rows,
			[2]any{"Total Defects", s.TotalDefects},
			[2]any{"Critical Issues", s.CriticalIssues},
			[2]any{"Affected Rooms", s.AffectedRooms},
			[2]any{"Inspector", s.InspectorEmail},
			[2]any{"Summary", s.SummaryText},
		)
	}

	w.header(SummarySheet, []string{"Field", "Value"}, []float64{24, 80})
	for i, r := range rows {
		w.set(SummarySheet, 1, i+2, r[0])
		w.set(SummarySheet, 2, i+2, r[1])
	}
}

func (w *sheetWriter) findings(findings []models.Finding) {
	sorted := make([]models.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Severity > sorted[j].Severity })

	w.header(FindingsSheet, findingsHeader, []float64{18, 14, 10, 60, 16})
	for i, f := range sorted {
		row := i + 2
		w.set(FindingsSheet, 1, row, f.RoomName)
		w.set(FindingsSheet, 2, row, string(f.DefectType))
		w.set(FindingsSheet, 3, row, f.Severity)
		w.set(FindingsSheet, 4, row, f.Description)
		w.set(FindingsSheet, 5, row, string(f.Source))
	}
}

func (w *sheetWriter) improvements(improvements []models.Improvement) {
	sorted := make([]models.Improvement, len(improvements))
	copy(sorted, improvements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return models.PriorityRank(sorted[i].Priority) < models.PriorityRank(sorted[j].Priority)
	})

	w.header(ImprovementsSheet, improvementsHeader, []float64{12, 14, 60, 22, 30, 10})
	for i, imp := range sorted {
		row := i + 2
		w.set(ImprovementsSheet, 1, row, string(imp.Priority))
		w.set(ImprovementsSheet, 2, row, string(imp.DefectType))
		w.set(ImprovementsSheet, 3, row, imp.Action)
		w.set(ImprovementsSheet, 4, row, imp.CostRange)
		w.set(ImprovementsSheet, 5, row, imp.AffectedRooms)
		w.set(ImprovementsSheet, 6, row, imp.Count)
	}
}
