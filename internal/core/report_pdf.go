package core

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"incidentdb/pkg/domain"
)

// ReportFormat selects how an incident report is rendered.
type ReportFormat string

const (
	ReportHTML ReportFormat = "html"
	ReportPDF  ReportFormat = "pdf"
)

// Content types of the rendered report formats.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
)

// ParseReportFormat accepts "html" and "pdf" in any case. Empty means HTML.
func ParseReportFormat(raw string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return ReportHTML, nil
	case ReportHTML, ReportPDF:
		return f, nil
	}
	return "", domain.FieldError{Field: "format", Value: raw, Err: fmt.Errorf("want html or pdf")}
}

// ContentType is the MIME type of the format.
func (f ReportFormat) ContentType() string {
	if f == ReportPDF {
		return ContentTypePDF
	}
	return ContentTypeHTML
}

// WriteReport renders the incident report in the given format.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, id int, format ReportFormat) error {
	if format == ReportPDF {
		return s.RenderReportPDF(ctx, w, id)
	}
	return s.RenderReport(ctx, w, id)
}

// RenderReportPDF writes the printable report as a single PDF document.
func (s *Service) RenderReportPDF(ctx context.Context, w io.Writer, id int) error {
	_, err := s.run(ctx, "render_report_pdf", domain.EntityIncident, func(context.Context) (string, Result, error) {
		report, err := s.BuildReport(id)
		if err != nil {
			return "", Result{}, err
		}
		return report.Incident.Key(), Result{}, writeReportPDF(w, report)
	})
	return err
}

const (
	pdfFont      = "Helvetica"
	pdfLine      = 6.0
	pdfLabelWide = 45.0
)

// reportPDF lays out an IncidentReport top to bottom on Letter pages.
type reportPDF struct {
	doc   *fpdf.Fpdf
	tr    func(string) string
	width float64
}

func writeReportPDF(w io.Writer, r IncidentReport) error {
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.SetTitle(reportTitle(r.Incident.ID), false)
	doc.SetCreator("incidentdb", false)
	doc.SetCreationDate(r.Generated)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()
	pageW, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	p := reportPDF{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor(""), width: pageW - left - right}

	p.heading(reportTitle(r.Incident.ID), 16)
	p.fields(r.Overview)
	p.fields(r.Location)
	if len(r.Caller) > 0 {
		p.heading("Caller", 12)
		p.fields(r.Caller)
	}
	p.heading("On-Scene Summary", 12)
	p.fields(snapshotFields(r.Snapshot))
	if r.Narrative != "" {
		p.heading("Narrative", 12)
		doc.SetFont(pdfFont, "", 10)
		doc.MultiCell(p.width, pdfLine, p.tr(r.Narrative), "", "L", false)
	}
	for _, t := range r.Tables {
		p.heading(t.Title, 12)
		p.table(t)
	}
	if len(r.Authors) > 0 {
		p.heading("Report", 12)
		p.fields(r.Authors)
	}
	doc.Ln(4)
	doc.SetFont(pdfFont, "I", 8)
	doc.CellFormat(p.width, pdfLine, "Generated "+r.Generated.Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	return doc.Output(w)
}

func (p reportPDF) heading(text string, size float64) {
	p.doc.Ln(2)
	p.doc.SetFont(pdfFont, "B", size)
	p.doc.CellFormat(p.width, size*0.6, p.tr(text), "", 1, "L", false, 0, "")
	p.doc.Ln(1)
}

func (p reportPDF) fields(fields []ReportField) {
	for _, f := range fields {
		p.doc.SetFont(pdfFont, "B", 10)
		p.doc.CellFormat(pdfLabelWide, pdfLine, p.tr(f.Label), "", 0, "L", false, 0, "")
		p.doc.SetFont(pdfFont, "", 10)
		p.doc.MultiCell(p.width-pdfLabelWide, pdfLine, p.tr(f.Value), "", "L", false)
	}
}

func (p reportPDF) table(t ReportTable) {
	if len(t.Columns) == 0 {
		return
	}
	col := p.width / float64(len(t.Columns))
	p.doc.SetFont(pdfFont, "B", 9)
	p.doc.SetFillColor(235, 235, 235)
	for _, c := range t.Columns {
		p.doc.CellFormat(col, pdfLine, p.tr(c), "1", 0, "L", true, 0, "")
	}
	p.doc.Ln(-1)
	p.doc.SetFont(pdfFont, "", 9)
	for _, row := range t.Rows {
		for i := range t.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			p.doc.CellFormat(col, pdfLine, p.tr(cell), "1", 0, "L", false, 0, "")
		}
		p.doc.Ln(-1)
	}
}

func snapshotFields(s IncidentSnapshot) []ReportField {
	out := []ReportField{{Label: "Personnel on Scene", Value: strconv.Itoa(s.PersonnelCount)}}
	if len(s.PersonnelByRole) > 0 {
		roles := make([]string, 0, len(s.PersonnelByRole))
		for _, c := range s.PersonnelByRole {
			roles = append(roles, fmt.Sprintf("%s: %d", c.Key, c.Count))
		}
		out = append(out, ReportField{Label: "By Role", Value: strings.Join(roles, ", ")})
	}
	if len(s.Roster) > 0 {
		out = append(out, ReportField{Label: "Roster", Value: strings.Join(s.Roster, ", ")})
	}
	out = append(out, ReportField{Label: "Apparatus on Scene", Value: strconv.Itoa(s.ApparatusCount)})
	if len(s.Units) > 0 {
		out = append(out, ReportField{Label: "Units", Value: strings.Join(s.Units, ", ")})
	}
	return out
}
