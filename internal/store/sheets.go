package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"tablero/internal/metrics"
	"tablero/internal/models"
)

const sheetsTimeLayout = "2006-01-02 15:04:05"

// SheetsStore is the spreadsheet backend over the Google Sheets API.
// Each restaurant has two tabs: "<id>_tables" and "<id>_reservations".
// The API offers append/overwrite semantics only, so the engine's
// per-restaurant serialization is what keeps check-then-write sound.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	timeout       time.Duration
	limiter       *rate.Limiter

	mu       sync.Mutex
	rowCache map[string]cachedRow // reservation id -> sheet position and last seen status
}

// cachedRow remembers where a reservation lives in the sheet and the status
// it had when last read, so status updates can honor the terminal guard
// without another read.
type cachedRow struct {
	row    int // 1-based sheet row
	status string
}

// NewSheetsStore builds a store from service-account credentials JSON.
func NewSheetsStore(ctx context.Context, credentialsJSON []byte, spreadsheetID string, timeout time.Duration) (*SheetsStore, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		timeout:       timeout,
		// Sheets API quota is 60 read/write requests per minute per user.
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		rowCache: make(map[string]cachedRow),
	}, nil
}

func (s *SheetsStore) ListTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	values, err := s.readRange(ctx, restaurantID+"_tables!A2:G")
	if err != nil {
		metrics.IncStoreError("sheets", "list_tables")
		return nil, Unavailable("list tables", err)
	}

	tables := make([]models.Table, 0, len(values))
	for _, row := range values {
		t, ok := parseTableRow(row)
		if !ok {
			continue
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (s *SheetsStore) ListReservations(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	values, err := s.readRange(ctx, restaurantID+"_reservations!A2:M")
	if err != nil {
		metrics.IncStoreError("sheets", "list_reservations")
		return nil, Unavailable("list reservations", err)
	}

	var reservations []models.Reservation
	for i, row := range values {
		r, ok := parseReservationRow(row, date.Location())
		if !ok {
			continue
		}
		s.setCachedRow(r.ID, i+2, r.Status) // +2: 1-based rows plus header
		if sameDate(r.StartAt, date) {
			reservations = append(reservations, r)
		}
	}
	return reservations, nil
}

func (s *SheetsStore) CreateReservation(ctx context.Context, restaurantID string, r *models.Reservation) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return Unavailable("rate limit", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vr := &sheets.ValueRange{Values: [][]interface{}{reservationRowValues(r)}}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, restaurantID+"_reservations!A:M", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		metrics.IncStoreError("sheets", "create_reservation")
		return Unavailable("append reservation", err)
	}
	return nil
}

func (s *SheetsStore) UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error {
	entry, ok := s.getCachedRow(reservationID)
	if !ok {
		// Cold cache: a full list refreshes the id -> row mapping.
		if _, err := s.ListReservations(ctx, restaurantID, time.Now()); err != nil {
			return err
		}
		if entry, ok = s.getCachedRow(reservationID); !ok {
			return fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
		}
	}
	if entry.status == models.StatusCompleted || entry.status == models.StatusCancelled {
		return nil // terminal rows stay terminal
	}
	row := entry.row

	if err := s.limiter.Wait(ctx); err != nil {
		return Unavailable("rate limit", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Column F holds status, column M updated_at.
	vr := &sheets.ValueRange{Values: [][]interface{}{{newStatus}}}
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, fmt.Sprintf("%s_reservations!F%d", restaurantID, row), vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		s.deleteCachedRow(reservationID)
		metrics.IncStoreError("sheets", "update_status")
		return Unavailable("update reservation status", err)
	}

	ts := &sheets.ValueRange{Values: [][]interface{}{{time.Now().Format(sheetsTimeLayout)}}}
	if _, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, fmt.Sprintf("%s_reservations!M%d", restaurantID, row), ts).
		ValueInputOption("RAW").
		Context(ctx).Do(); err != nil {
		metrics.IncStoreError("sheets", "update_status")
		return Unavailable("update reservation timestamp", err)
	}
	s.setCachedRow(reservationID, row, newStatus)
	return nil
}

func (s *SheetsStore) readRange(ctx context.Context, readRange string) ([][]interface{}, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ClearCache drops the row index cache.
func (s *SheetsStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]cachedRow)
}

func (s *SheetsStore) setCachedRow(id string, row int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[id] = cachedRow{row: row, status: status}
}

func (s *SheetsStore) getCachedRow(id string) (cachedRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rowCache[id]
	return entry, ok
}

func (s *SheetsStore) deleteCachedRow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, id)
}

// reservationRowValues maps a reservation to its sheet columns A..M.
func reservationRowValues(r *models.Reservation) []interface{} {
	return []interface{}{
		r.ID,
		r.RestaurantID,
		r.StartAt.Format("2006-01-02"),
		r.StartAt.Format("15:04"),
		strconv.Itoa(r.PartySize),
		r.Status,
		r.AssignedTableID,
		r.ZonePreference,
		r.ClientName,
		r.ClientPhone,
		r.Notes,
		r.CreatedBy,
		r.UpdatedAt.Format(sheetsTimeLayout),
	}
}

func parseReservationRow(row []interface{}, loc *time.Location) (models.Reservation, bool) {
	if len(row) < 7 {
		return models.Reservation{}, false
	}
	get := func(i int) string {
		if i >= len(row) {
			return ""
		}
		s, _ := row[i].(string)
		return strings.TrimSpace(s)
	}

	startAt, err := models.CombineDateTime(get(2), get(3), loc)
	if err != nil {
		return models.Reservation{}, false
	}
	partySize, err := strconv.Atoi(get(4))
	if err != nil {
		return models.Reservation{}, false
	}

	return models.Reservation{
		ID:              get(0),
		RestaurantID:    get(1),
		StartAt:         startAt,
		PartySize:       partySize,
		Status:          get(5),
		AssignedTableID: get(6),
		ZonePreference:  get(7),
		ClientName:      get(8),
		ClientPhone:     get(9),
		Notes:           get(10),
		CreatedBy:       get(11),
	}, true
}

// parseTableRow maps sheet columns A..G to a table:
// id, capacity, zone, shifts (comma separated), status, client_ref.
func parseTableRow(row []interface{}) (models.Table, bool) {
	if len(row) < 2 {
		return models.Table{}, false
	}
	get := func(i int) string {
		if i >= len(row) {
			return ""
		}
		s, _ := row[i].(string)
		return strings.TrimSpace(s)
	}

	capacity, err := strconv.Atoi(get(1))
	if err != nil || capacity <= 0 {
		return models.Table{}, false
	}

	t := models.Table{
		ID:        get(0),
		Capacity:  capacity,
		Zone:      get(2),
		Status:    get(4),
		ClientRef: get(5),
	}
	if shifts := get(3); shifts != "" {
		t.Shifts = strings.Split(shifts, ",")
	}
	return t, true
}
