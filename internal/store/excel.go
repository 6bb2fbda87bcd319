package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"tablero/internal/metrics"
	"tablero/internal/models"
)

// ExcelStore is the offline spreadsheet backend: a local .xlsx workbook
// with the same tab and column layout as the Sheets backend. Used by
// restaurants that manage their book in a file instead of a cloud sheet.
// The whole workbook is guarded by one mutex; excelize has no concurrent
// writer support.
type ExcelStore struct {
	path string
	mu   sync.Mutex
}

// NewExcelStore opens or creates the workbook at path.
func NewExcelStore(path string) (*ExcelStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("create workbook: %w", err)
		}
		_ = f.Close()
	}
	return &ExcelStore{path: path}, nil
}

func (s *ExcelStore) ListTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("list tables", err)
	}

	rows, err := s.readSheet(restaurantID + "_tables")
	if err != nil {
		metrics.IncStoreError("excel", "list_tables")
		return nil, Unavailable("list tables", err)
	}

	var tables []models.Table
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		t, ok := parseTableRow(toInterfaceRow(row))
		if !ok {
			continue
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (s *ExcelStore) ListReservations(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("list reservations", err)
	}

	rows, err := s.readSheet(restaurantID + "_reservations")
	if err != nil {
		metrics.IncStoreError("excel", "list_reservations")
		return nil, Unavailable("list reservations", err)
	}

	var reservations []models.Reservation
	for i, row := range rows {
		if i == 0 {
			continue
		}
		r, ok := parseReservationRow(toInterfaceRow(row), date.Location())
		if !ok {
			continue
		}
		if sameDate(r.StartAt, date) {
			reservations = append(reservations, r)
		}
	}
	return reservations, nil
}

func (s *ExcelStore) CreateReservation(ctx context.Context, restaurantID string, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Unavailable("create reservation", err)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		metrics.IncStoreError("excel", "create_reservation")
		return Unavailable("open workbook", err)
	}
	defer f.Close()

	sheet := restaurantID + "_reservations"
	if err := s.ensureSheet(f, sheet); err != nil {
		metrics.IncStoreError("excel", "create_reservation")
		return Unavailable("ensure sheet", err)
	}

	existing, err := f.GetRows(sheet)
	if err != nil {
		metrics.IncStoreError("excel", "create_reservation")
		return Unavailable("read sheet", err)
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(existing)+1)
	if err := f.SetSheetRow(sheet, cell, &[]interface{}{
		r.ID, r.RestaurantID,
		r.StartAt.Format("2006-01-02"), r.StartAt.Format("15:04"),
		fmt.Sprintf("%d", r.PartySize), r.Status, r.AssignedTableID,
		r.ZonePreference, r.ClientName, r.ClientPhone, r.Notes, r.CreatedBy,
		r.UpdatedAt.Format(sheetsTimeLayout),
	}); err != nil {
		metrics.IncStoreError("excel", "create_reservation")
		return Unavailable("write row", err)
	}
	if err := f.Save(); err != nil {
		metrics.IncStoreError("excel", "create_reservation")
		return Unavailable("save workbook", err)
	}
	return nil
}

func (s *ExcelStore) UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Unavailable("update reservation status", err)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		metrics.IncStoreError("excel", "update_status")
		return Unavailable("open workbook", err)
	}
	defer f.Close()

	sheet := restaurantID + "_reservations"
	rows, err := f.GetRows(sheet)
	if err != nil {
		metrics.IncStoreError("excel", "update_status")
		return Unavailable("read sheet", err)
	}

	for i, row := range rows {
		if i == 0 || len(row) == 0 || row[0] != reservationID {
			continue
		}
		if len(row) > 5 && (row[5] == models.StatusCompleted || row[5] == models.StatusCancelled) {
			return nil // terminal rows stay terminal
		}
		statusCell, _ := excelize.CoordinatesToCellName(6, i+1)
		if err := f.SetCellValue(sheet, statusCell, newStatus); err != nil {
			metrics.IncStoreError("excel", "update_status")
			return Unavailable("write status", err)
		}
		tsCell, _ := excelize.CoordinatesToCellName(13, i+1)
		if err := f.SetCellValue(sheet, tsCell, time.Now().Format(sheetsTimeLayout)); err != nil {
			metrics.IncStoreError("excel", "update_status")
			return Unavailable("write timestamp", err)
		}
		if err := f.Save(); err != nil {
			metrics.IncStoreError("excel", "update_status")
			return Unavailable("save workbook", err)
		}
		return nil
	}
	return fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
}

func (s *ExcelStore) readSheet(sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, nil // missing tab reads as empty
	}
	return f.GetRows(sheet)
}

func (s *ExcelStore) ensureSheet(f *excelize.File, sheet string) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	header := []interface{}{
		"id", "restaurant_id", "date", "time", "party_size", "status",
		"table_id", "zone", "client_name", "client_phone", "notes",
		"created_by", "updated_at",
	}
	return f.SetSheetRow(sheet, "A1", &header)
}

func toInterfaceRow(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
