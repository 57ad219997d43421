// Package reportsvc renders training reports. Layout only: every figure comes precomputed in the report.
package reportsvc

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core/training"
)

const (
	fontFamily = "Helvetica"
	dateLayout = "2006-01-02 15:04 MST"
	lineHeight = 7.0
)

var phaseColumns = []struct {
	title string
	width float64
	align string
}{
	{"Phase", 80, "L"},
	{"Forms", 30, "C"},
	{"%", 20, "C"},
	{"Status", 50, "L"},
}

type PDFRenderer struct {
	appName  string
	compress bool
}

var _ training.ReportRenderer = (*PDFRenderer)(nil)

func NewPDFRenderer(appName string) *PDFRenderer {
	return &PDFRenderer{appName: appName, compress: true}
}

func (r *PDFRenderer) RenderStudentReport(w io.Writer, report training.StudentReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("") // cp1252 core fonts
	pdf.SetCompression(r.compress)
	pdf.SetTitle(report.ProgramName+" - "+report.Student.Name, true)
	pdf.SetCreator(r.appName, true)
	pdf.SetCreationDate(report.GeneratedAt)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s - page %d/{nb}", report.GeneratedAt.Format(dateLayout), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// title
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 10, tr(report.ProgramName), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 11)
	pdf.CellFormat(0, lineHeight, tr("Progress report"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// student
	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(0, lineHeight, tr(report.Student.Name), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	for _, line := range []string{report.Student.Username, report.Student.Email} {
		if line != "" {
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	// summary
	sum := report.Progress.Summary
	pdf.SetFont(fontFamily, "B", 11)
	pdf.CellFormat(0, lineHeight, fmt.Sprintf("Overall completion: %d%%", sum.OverallPercentage), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d/%d forms submitted, %d/%d phases complete", sum.CompletedForms, sum.TotalForms, sum.CompletedPhases, sum.TotalPhases), "", 1, "L", false, 0, "")
	if cp := report.Progress.CurrentPhase; cp != nil {
		pdf.CellFormat(0, 6, tr("Current phase: "+cp.Name), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// phases
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range phaseColumns {
		pdf.CellFormat(col.width, lineHeight, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 10)
	for _, ps := range report.Progress.Phases {
		cells := []string{
			tr(ps.Name),
			fmt.Sprintf("%d/%d", ps.Completed, ps.Total),
			fmt.Sprintf("%d", ps.Percentage),
			ps.Label(),
		}
		for i, col := range phaseColumns {
			pdf.CellFormat(col.width, lineHeight, cells[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	// submitted forms
	pdf.SetFont(fontFamily, "B", 11)
	pdf.CellFormat(0, lineHeight, "Submitted forms", "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	if len(report.Submissions) == 0 {
		pdf.CellFormat(0, 6, "None", "", 1, "L", false, 0, "")
	}
	names := make(map[training.PhaseID]string, len(report.Progress.Phases))
	for _, ps := range report.Progress.Phases {
		names[ps.ID] = ps.Name
	}
	for _, sub := range report.Submissions {
		name, ok := names[sub.PhaseID]
		if !ok {
			name = string(sub.PhaseID)
		}
		pdf.CellFormat(100, 6, tr(fmt.Sprintf("%s #%d", name, sub.FormNumber)), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, sub.SubmittedAt.Format(dateLayout), "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "rendering pdf")
	}
	return nil
}
