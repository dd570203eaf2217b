package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"ms-reservation/internal/models"
)

type BoardingPassGenerator struct{}

func NewBoardingPassGenerator() *BoardingPassGenerator {
	return &BoardingPassGenerator{}
}

func (g *BoardingPassGenerator) Generate(b *models.Booking, qrPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Boarding Pass "+b.ID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOARDING PASS")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range details(b) {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	if len(qrPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
		pdf.ImageOptions("qr", 10, pdf.GetY()+6, 60, 60, false, opts, 0, "")
		pdf.SetY(pdf.GetY() + 70)
	}

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Show this pass when boarding. It is valid only for the journey date and seats above.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render boarding pass: %w", err)
	}
	return buf.Bytes(), nil
}

func details(b *models.Booking) []string {
	lines := []string{"Booking ID   : " + b.ID}
	if v := b.Vehicle; v != nil {
		lines = append(lines,
			fmt.Sprintf("Vehicle      : %s (%s)", v.Name, v.Number),
			fmt.Sprintf("Route        : %s - %s", v.Origin, v.Destination),
			fmt.Sprintf("Departs      : %s, arrives %s", v.StartTime, v.ReachTime),
		)
	}
	lines = append(lines,
		"Journey date : "+b.JourneyDate.String(),
		"Seats        : "+strings.Join(b.SeatNumbers(), ", "),
		"Status       : "+string(b.Status),
		"Booked at    : "+b.BookedAt.UTC().Format(time.RFC822),
	)
	return lines
}
