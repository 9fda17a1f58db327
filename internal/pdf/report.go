package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Generator renders moderation reports (handy to mock in handler tests).
type Generator interface {
	BlockedDevicesReport(w io.Writer, data BlockedReport) error
}

// BlockedRow is one line of the audit report. Phone must already be masked.
type BlockedRow struct {
	Fingerprint string
	Phone       string
	Reason      string
	BlockedBy   string
	Since       time.Time
	// Until is set for protocol lockouts.
	Until *time.Time
}

type BlockedReport struct {
	AppName     string
	GeneratedAt time.Time
	GeneratedBy string
	Rows        []BlockedRow
}

// ReportGenerator draws with a UTF-8 TTF when FontPath is set, otherwise with
// the core Helvetica font.
type ReportGenerator struct {
	FontPath string
	fontName string
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	name := "Helvetica"
	if fontPath != "" {
		name = "DejaVu"
	}
	return &ReportGenerator{FontPath: fontPath, fontName: name}
}

var columns = []struct {
	title string
	width float64
}{
	{"Fingerprint", 48},
	{"Phone", 32},
	{"Reason", 62},
	{"Blocked by", 36},
	{"Since", 34},
	{"Until", 34},
}

func (g *ReportGenerator) BlockedDevicesReport(w io.Writer, data BlockedReport) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s blocked devices", data.AppName), false)
	pdf.SetAuthor(data.AppName, false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	g.addFont(pdf)
	tr := g.translator(pdf)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// ===== Header
	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, tr("Blocked devices"), "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	sub := fmt.Sprintf("%s · generated %s", data.AppName, data.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	if data.GeneratedBy != "" {
		sub += " by " + data.GeneratedBy
	}
	pdf.CellFormat(0, 6, tr(sub), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Total: %d", len(data.Rows)), "", 1, "L", false, 0, "")
	g.hr(pdf)

	// ===== Table
	g.tableHeader(pdf)
	pdf.SetFont(g.fontName, "", 9)
	for i, r := range data.Rows {
		fill := i%2 == 1
		pdf.SetFillColor(242, 242, 242)
		until := ""
		if r.Until != nil {
			until = r.Until.UTC().Format("2006-01-02 15:04")
		}
		cells := []string{
			shorten(r.Fingerprint, 24),
			r.Phone,
			shorten(r.Reason, 40),
			shorten(r.BlockedBy, 22),
			r.Since.UTC().Format("2006-01-02 15:04"),
			until,
		}
		for c, text := range cells {
			pdf.CellFormat(columns[c].width, 7, tr(text), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(data.Rows) == 0 {
		pdf.CellFormat(0, 8, tr("No blocked devices."), "", 1, "L", false, 0, "")
	}

	return pdf.Output(w)
}

func (g *ReportGenerator) tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont(g.fontName, "B", 10)
	pdf.SetFillColor(220, 220, 220)
	for _, c := range columns {
		pdf.CellFormat(c.width, 8, c.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(15, y, 282, y)
	pdf.SetY(y + 3)
}

func (g *ReportGenerator) addFont(pdf *gofpdf.Fpdf) {
	if g.FontPath == "" {
		return
	}
	pdf.AddUTF8Font(g.fontName, "", g.FontPath)
	pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
}

// translator maps UTF-8 to cp1252 for the core font; TTF fonts take UTF-8 as is.
func (g *ReportGenerator) translator(pdf *gofpdf.Fpdf) func(string) string {
	if g.FontPath != "" {
		return func(s string) string { return s }
	}
	return pdf.UnicodeTranslatorFromDescriptor("")
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
