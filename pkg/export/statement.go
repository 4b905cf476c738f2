package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// StatementLine is one ledger entry on a wallet statement.
type StatementLine struct {
	Date        time.Time
	Type        string
	Description string
	Amount      decimal.Decimal
}

// Statement describes the content of a wallet statement document.
type Statement struct {
	StudentName string
	StudentNo   string
	Balance     decimal.Decimal
	GeneratedAt time.Time
	Lines       []StatementLine
}

// StatementExporter renders wallet statements as PDF documents.
type StatementExporter struct{}

// NewStatementExporter constructs a statement exporter.
func NewStatementExporter() *StatementExporter {
	return &StatementExporter{}
}

// Render produces the PDF bytes for a statement.
func (e *StatementExporter) Render(st Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "WALLET STATEMENT", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Student: %s (%s)", st.StudentName, st.StudentNo), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Balance: %s", st.Balance.StringFixed(2)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", st.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "", false, 0, "")
	pdf.Ln(4)

	headers := []struct {
		label string
		width float64
	}{
		{"Date", 30},
		{"Type", 35},
		{"Description", 90},
		{"Amount", 35},
	}

	pdf.SetFont("Arial", "B", 10)
	for _, h := range headers {
		pdf.CellFormat(h.width, 8, h.label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range st.Lines {
		pdf.CellFormat(30, 7, line.Date.Format("2006-01-02"), "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, line.Type, "1", 0, "", false, 0, "")
		pdf.CellFormat(90, 7, line.Description, "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, line.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}
