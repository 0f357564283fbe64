package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/jung-kurt/gofpdf"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

//go:embed templates/valve_report.html
var valveReportHTML string

var valveReportTemplate = template.Must(template.New("valve_report").Parse(valveReportHTML))

// ReportRow is one label/value line of a report section
type ReportRow struct {
	Label string
	Value string
}

// ReportSection groups the attributes of one field group
type ReportSection struct {
	Name string
	Rows []ReportRow
}

// ValveReport is the data rendered into a single-valve PDF
type ValveReport struct {
	Title       string
	Tag         string
	Status      string
	GeneratedAt string
	Sections    []ReportSection
	Attachments []models.ValveAttachment
}

// BuildValveReport groups the valve attributes by section in declaration order
func BuildValveReport(valve *models.Valve, now time.Time) ValveReport {
	report := ValveReport{
		Title:       "阀门台账 - " + valve.Tag,
		Tag:         valve.Tag,
		Status:      statusLabel(valve.Status),
		GeneratedAt: now.Format("2006-01-02 15:04"),
		Attachments: valve.Attachments,
	}

	index := make(map[string]int)
	for _, field := range models.ValveFields() {
		i, ok := index[field.Group]
		if !ok {
			i = len(report.Sections)
			index[field.Group] = i
			report.Sections = append(report.Sections, ReportSection{Name: field.Group})
		}
		report.Sections[i].Rows = append(report.Sections[i].Rows, ReportRow{
			Label: field.Label,
			Value: valve.FieldValue(field.Key),
		})
	}
	return report
}

type ReportService struct {
	valves         *ValveService
	useWkhtmltopdf bool
	fontPath       string
}

// NewReportService creates the PDF renderer. fontPath is a TTF with CJK
// glyphs used by the gofpdf fallback; without it labels are transliterated.
func NewReportService(valves *ValveService, useWkhtmltopdf bool, fontPath string) *ReportService {
	return &ReportService{valves: valves, useWkhtmltopdf: useWkhtmltopdf, fontPath: fontPath}
}

// ValvePDF renders one visible valve as PDF
func (s *ReportService) ValvePDF(ctx context.Context, actor statemachine.Actor, id uint) ([]byte, string, error) {
	valve, err := s.valves.Get(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}

	report := BuildValveReport(valve, time.Now())
	filename := fmt.Sprintf("valve_%s.pdf", valve.Tag)

	if s.useWkhtmltopdf {
		data, err := s.renderHTML(report)
		if err == nil {
			return data, filename, nil
		}
		logger.Warn("wkhtmltopdf failed, falling back to gofpdf", "valve_id", id, "error", err)
	}

	data, err := s.draw(report)
	if err != nil {
		return nil, "", err
	}
	return data, filename, nil
}

func (s *ReportService) renderHTML(report ValveReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := valveReportTemplate.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf generator: %w", err)
	}
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(buf.Bytes()))
	page.Encoding.Set("utf-8")
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create pdf: %w", err)
	}
	return pdfg.Bytes(), nil
}

func (s *ReportService) draw(report ValveReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if s.fontPath != "" {
		pdf.AddUTF8Font("cjk", "", s.fontPath)
		pdf.AddUTF8Font("cjk", "B", s.fontPath)
		family = "cjk"
		tr = func(in string) string { return in }
	}
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.Cell(0, 10, tr(report.Title))
	pdf.Ln(10)
	pdf.SetFont(family, "", 9)
	pdf.Cell(0, 6, tr(fmt.Sprintf("%s / %s", report.Status, report.GeneratedAt)))
	pdf.Ln(8)

	for _, section := range report.Sections {
		pdf.SetFont(family, "B", 11)
		pdf.SetFillColor(224, 224, 224)
		pdf.CellFormat(190, 7, tr(section.Name), "1", 1, "L", true, 0, "")
		pdf.SetFont(family, "", 9)
		for _, row := range section.Rows {
			pdf.CellFormat(60, 6, tr(row.Label), "1", 0, "L", false, 0, "")
			pdf.CellFormat(130, 6, tr(row.Value), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}

	if len(report.Attachments) > 0 {
		pdf.SetFont(family, "B", 11)
		pdf.CellFormat(190, 7, tr("附件"), "1", 1, "L", true, 0, "")
		pdf.SetFont(family, "", 9)
		for _, a := range report.Attachments {
			pdf.CellFormat(38, 6, tr(a.Type), "1", 0, "L", false, 0, "")
			pdf.CellFormat(38, 6, tr(a.Name), "1", 0, "L", false, 0, "")
			pdf.CellFormat(38, 6, tr(a.Grade), "1", 0, "L", false, 0, "")
			pdf.CellFormat(38, 6, tr(a.Model), "1", 0, "L", false, 0, "")
			pdf.CellFormat(38, 6, tr(a.Manufacturer), "1", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
