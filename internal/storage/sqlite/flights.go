package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/skyfetch/internal/opensky"
	"github.com/yegors/skyfetch/pkg/logger"
)

const dateLayout = "2006-01-02"

// FlightStorage handles storage of raw API responses and parsed flights
type FlightStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightStorage creates a new SQLite flight storage
func NewFlightStorage(db *sql.DB, logger *logger.Logger) (*FlightStorage, error) {
	storage := &FlightStorage{
		db:     db,
		logger: logger.Named("sqlite-flights"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize flight storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *FlightStorage) initDB() error {
	// Raw API responses, one per (airport, date, kind)
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS raw_responses (
			airport TEXT NOT NULL,
			date TEXT NOT NULL,
			kind TEXT NOT NULL,
			request_timestamp TIMESTAMP NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (airport, date, kind)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create raw_responses table: %w", err)
	}

	// Parsed flight data
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			airport TEXT NOT NULL,
			date TEXT NOT NULL,
			kind TEXT NOT NULL,
			icao24 TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER,
			est_departure_airport TEXT,
			est_arrival_airport TEXT,
			callsign TEXT,
			est_departure_airport_horiz_distance INTEGER,
			est_departure_airport_vert_distance INTEGER,
			est_arrival_airport_horiz_distance INTEGER,
			est_arrival_airport_vert_distance INTEGER,
			departure_airport_candidates_count INTEGER,
			arrival_airport_candidates_count INTEGER,
			PRIMARY KEY (airport, date, kind, icao24, first_seen)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	// Create indexes for query performance
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_airport_date ON flights(airport, date)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_icao24 ON flights(icao24)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_callsign ON flights(callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_departure_airport ON flights(est_departure_airport)`,
	}

	for _, indexSQL := range indexes {
		_, err = s.db.Exec(indexSQL)
		if err != nil {
			return fmt.Errorf("failed to create flights index: %w", err)
		}
	}

	return nil
}

// HasData reports whether a prior successful fetch exists for the key.
// Failed units are never written, so presence of a raw entry means success.
func (s *FlightStorage) HasData(ctx context.Context, airport string, day time.Time, kind opensky.Kind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_responses WHERE airport = ? AND date = ? AND kind = ?`,
		airport, day.Format(dateLayout), string(kind),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query raw_responses: %w", err)
	}
	return count > 0, nil
}

// StoreFetch persists one unit's raw payload and parsed flights in a single
// transaction. Re-storing the same key replaces the previous entry, so the
// write is idempotent and a concurrent reader never sees a partial unit.
// Flights missing icao24 or firstSeen are dropped.
func (s *FlightStorage) StoreFetch(ctx context.Context, airport string, day time.Time, kind opensky.Kind, fetchedAt time.Time, raw []byte, flights []opensky.Flight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := day.Format(dateLayout)

	_, err = tx.ExecContext(ctx,
		`DELETE FROM raw_responses WHERE airport = ? AND date = ? AND kind = ?`,
		airport, date, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete raw response: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO raw_responses (airport, date, kind, request_timestamp, raw_json)
		VALUES (?, ?, ?, ?, ?)`,
		airport, date, string(kind), fetchedAt.Format(time.RFC3339), string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert raw response: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM flights WHERE airport = ? AND date = ? AND kind = ?`,
		airport, date, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete flights: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO flights (
			airport, date, kind, icao24, first_seen, last_seen,
			est_departure_airport, est_arrival_airport, callsign,
			est_departure_airport_horiz_distance,
			est_departure_airport_vert_distance,
			est_arrival_airport_horiz_distance,
			est_arrival_airport_vert_distance,
			departure_airport_candidates_count,
			arrival_airport_candidates_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare flight insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, flight := range flights {
		if flight.Icao24 == "" || flight.FirstSeen == nil {
			continue
		}
		_, err = stmt.ExecContext(ctx,
			airport, date, string(kind),
			flight.Icao24, *flight.FirstSeen, flight.LastSeen,
			flight.EstDepartureAirport, flight.EstArrivalAirport, flight.Callsign,
			flight.EstDepartureAirportHorizDistance,
			flight.EstDepartureAirportVertDistance,
			flight.EstArrivalAirportHorizDistance,
			flight.EstArrivalAirportVertDistance,
			flight.DepartureAirportCandidatesCount,
			flight.ArrivalAirportCandidatesCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert flight: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Stored fetch",
		logger.String("airport", airport),
		logger.String("date", date),
		logger.String("kind", string(kind)),
		logger.Int("flights", inserted),
	)

	return nil
}

// Query returns parsed flights matching the filter, ordered by date,
// airport, first_seen. This is the export read path.
func (s *FlightStorage) Query(ctx context.Context, filter QueryFilter) ([]FlightRow, error) {
	query := `SELECT airport, date, kind, icao24, first_seen, last_seen,
		est_departure_airport, est_arrival_airport, callsign,
		est_departure_airport_horiz_distance,
		est_departure_airport_vert_distance,
		est_arrival_airport_horiz_distance,
		est_arrival_airport_vert_distance,
		departure_airport_candidates_count,
		arrival_airport_candidates_count
		FROM flights`

	var conditions []string
	var params []interface{}

	if len(filter.DepartureAirports) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.DepartureAirports)), ",")
		conditions = append(conditions, fmt.Sprintf("airport IN (%s)", placeholders))
		for _, a := range filter.DepartureAirports {
			params = append(params, a)
		}
	}
	if len(filter.ArrivalAirports) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.ArrivalAirports)), ",")
		conditions = append(conditions, fmt.Sprintf("est_arrival_airport IN (%s)", placeholders))
		for _, a := range filter.ArrivalAirports {
			params = append(params, a)
		}
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "date >= ?")
		params = append(params, filter.StartDate.Format(dateLayout))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "date <= ?")
		params = append(params, filter.EndDate.Format(dateLayout))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date, airport, first_seen"

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	return s.scanFlightRows(rows)
}

// scanFlightRows scans database rows into FlightRow structs
func (s *FlightStorage) scanFlightRows(rows *sql.Rows) ([]FlightRow, error) {
	var flights []FlightRow
	for rows.Next() {
		var row FlightRow
		var date string
		var lastSeen sql.NullInt64
		var estDep, estArr, callsign sql.NullString
		var depHoriz, depVert, arrHoriz, arrVert, depCand, arrCand sql.NullInt64

		if err := rows.Scan(
			&row.Airport,
			&date,
			&row.Kind,
			&row.Icao24,
			&row.FirstSeen,
			&lastSeen,
			&estDep,
			&estArr,
			&callsign,
			&depHoriz,
			&depVert,
			&arrHoriz,
			&arrVert,
			&depCand,
			&arrCand,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}

		parsed, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		row.Date = parsed

		if lastSeen.Valid {
			v := lastSeen.Int64
			row.LastSeen = &v
		}
		if estDep.Valid {
			v := estDep.String
			row.EstDepartureAirport = &v
		}
		if estArr.Valid {
			v := estArr.String
			row.EstArrivalAirport = &v
		}
		if callsign.Valid {
			v := callsign.String
			row.Callsign = &v
		}
		row.EstDepartureAirportHorizDistance = nullableInt(depHoriz)
		row.EstDepartureAirportVertDistance = nullableInt(depVert)
		row.EstArrivalAirportHorizDistance = nullableInt(arrHoriz)
		row.EstArrivalAirportVertDistance = nullableInt(arrVert)
		row.DepartureAirportCandidatesCount = nullableInt(depCand)
		row.ArrivalAirportCandidatesCount = nullableInt(arrCand)

		flights = append(flights, row)
	}

	return flights, rows.Err()
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
