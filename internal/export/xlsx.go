package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"artisanlink/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"ID", "Status", "Scheduled", "Time slot", "Service", "Customer", "Artisan",
	"Address", "Emergency", "Proposed total", "Currency", "Price note", "Updated",
}

var columnWidths = []float64{26, 16, 12, 14, 22, 22, 22, 32, 10, 14, 10, 30, 18}

// Exporter writes booking collections into xlsx workbooks.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger, now: time.Now}
}

// Export writes one sheet listing bookings and returns the file path.
func (e *Exporter) Export(role models.Role, ownerID string, bookings []models.Booking) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	now := e.now()
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s bookings for %s, %s",
		role, ownerID, now.Format("02.01.2006 15:04")))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	if err := writeHeaders(f); err != nil {
		return "", err
	}

	styles, err := newStatusStyles(f)
	if err != nil {
		return "", fmt.Errorf("error creating styles: %w", err)
	}
	for i, b := range bookings {
		writeRow(f, i+3, b, styles)
	}

	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, col, col, w)
	}

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_%s_%s.xlsx", role, ownerID, now.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(bookings)).Msg("Excel file created")
	return filePath, nil
}

func writeHeaders(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
	return nil
}

func writeRow(f *excelize.File, row int, b models.Booking, styles statusStyles) {
	values := []any{
		b.ID,
		b.Status.Label(),
		b.ScheduledDate,
		slotText(b.TimeSlot),
		refText(b.Service),
		refText(b.Customer),
		refText(b.Artisan),
		b.Location.Address,
		yesNo(b.IsEmergency),
		"",
		"",
		"",
		"",
	}
	if p := b.ProposedPrice; p != nil {
		values[9] = p.Total
		values[10] = p.Currency
		values[11] = p.Note
	}
	if b.UpdatedAt != nil {
		values[12] = b.UpdatedAt.Format("02.01.2006 15:04")
	}

	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}
	statusCell, _ := excelize.CoordinatesToCellName(2, row)
	_ = f.SetCellStyle(sheetName, statusCell, statusCell, styles.forStatus(b.Status))
}

type statusStyles struct {
	neutral, waiting, good, bad int
}

func newStatusStyles(f *excelize.File) (statusStyles, error) {
	var s statusStyles
	for _, entry := range []struct {
		dst   *int
		color string
	}{
		{&s.neutral, "#FFFFFF"},
		{&s.waiting, "#FFEB9C"},
		{&s.good, "#C6EFCE"},
		{&s.bad, "#FFC7CE"},
	} {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{entry.color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		})
		if err != nil {
			return s, err
		}
		*entry.dst = id
	}
	return s, nil
}

func (s statusStyles) forStatus(st models.Status) int {
	switch st {
	case models.StatusPriceProposed, models.StatusPending:
		return s.waiting
	case models.StatusAccepted, models.StatusEnRoute, models.StatusInProgress, models.StatusCompleted:
		return s.good
	case models.StatusPriceRejected, models.StatusCancelled, models.StatusDisputed:
		return s.bad
	default:
		return s.neutral
	}
}

func refText(r models.Ref) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func slotText(ts models.TimeSlot) string {
	if ts.Start == "" && ts.End == "" {
		return ""
	}
	return ts.Start + "-" + ts.End
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
