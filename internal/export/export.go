package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/yegors/skyfetch/internal/storage/sqlite"
	"github.com/yegors/skyfetch/pkg/logger"
)

// Format is an export output format.
type Format string

const (
	// FormatCSV writes comma-delimited text with a header row
	FormatCSV Format = "csv"
	// FormatParquet writes a columnar Parquet file
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatParquet:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported export format: %q (use csv or parquet)", s)
	}
}

// Querier is the export view of the store: a pure read path.
type Querier interface {
	Query(ctx context.Context, filter sqlite.QueryFilter) ([]sqlite.FlightRow, error)
}

// Exporter writes filtered flight subsets to flat files.
type Exporter struct {
	store  Querier
	logger *logger.Logger
}

// NewExporter creates a new exporter
func NewExporter(store Querier, logger *logger.Logger) *Exporter {
	return &Exporter{
		store:  store,
		logger: logger.Named("exporter"),
	}
}

// Export queries the store with the filter and writes the rows to
// outputPath in the requested format. It returns the number of rows written.
func (e *Exporter) Export(ctx context.Context, outputPath string, format Format, filter sqlite.QueryFilter) (int, error) {
	rows, err := e.store.Query(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to query flights: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatCSV:
		err = writeCSV(file, rows)
	case FormatParquet:
		err = writeParquet(file, rows)
	default:
		err = fmt.Errorf("unsupported export format: %q", format)
	}
	if err != nil {
		return 0, err
	}

	e.logger.Info("Exported flights",
		logger.String("path", outputPath),
		logger.String("format", string(format)),
		logger.Int("rows", len(rows)),
	)

	return len(rows), nil
}

var csvHeader = []string{
	"airport", "date", "kind", "icao24", "first_seen", "last_seen",
	"est_departure_airport", "est_arrival_airport", "callsign",
	"est_departure_airport_horiz_distance",
	"est_departure_airport_vert_distance",
	"est_arrival_airport_horiz_distance",
	"est_arrival_airport_vert_distance",
	"departure_airport_candidates_count",
	"arrival_airport_candidates_count",
}

func writeCSV(file *os.File, rows []sqlite.FlightRow) error {
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Airport,
			row.Date.Format("2006-01-02"),
			row.Kind,
			row.Icao24,
			strconv.FormatInt(row.FirstSeen, 10),
			int64String(row.LastSeen),
			stringValue(row.EstDepartureAirport),
			stringValue(row.EstArrivalAirport),
			stringValue(row.Callsign),
			intString(row.EstDepartureAirportHorizDistance),
			intString(row.EstDepartureAirportVertDistance),
			intString(row.EstArrivalAirportHorizDistance),
			intString(row.EstArrivalAirportVertDistance),
			intString(row.DepartureAirportCandidatesCount),
			intString(row.ArrivalAirportCandidatesCount),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// parquetFlight mirrors FlightRow with parquet field tags. Optional columns
// stay nullable in the file schema.
type parquetFlight struct {
	Airport                          string  `parquet:"airport"`
	Date                             string  `parquet:"date"`
	Kind                             string  `parquet:"kind"`
	Icao24                           string  `parquet:"icao24"`
	FirstSeen                        int64   `parquet:"first_seen"`
	LastSeen                         *int64  `parquet:"last_seen,optional"`
	EstDepartureAirport              *string `parquet:"est_departure_airport,optional"`
	EstArrivalAirport                *string `parquet:"est_arrival_airport,optional"`
	Callsign                         *string `parquet:"callsign,optional"`
	EstDepartureAirportHorizDistance *int    `parquet:"est_departure_airport_horiz_distance,optional"`
	EstDepartureAirportVertDistance  *int    `parquet:"est_departure_airport_vert_distance,optional"`
	EstArrivalAirportHorizDistance   *int    `parquet:"est_arrival_airport_horiz_distance,optional"`
	EstArrivalAirportVertDistance    *int    `parquet:"est_arrival_airport_vert_distance,optional"`
	DepartureAirportCandidatesCount  *int    `parquet:"departure_airport_candidates_count,optional"`
	ArrivalAirportCandidatesCount    *int    `parquet:"arrival_airport_candidates_count,optional"`
}

func writeParquet(file *os.File, rows []sqlite.FlightRow) error {
	records := make([]parquetFlight, 0, len(rows))
	for _, row := range rows {
		records = append(records, parquetFlight{
			Airport:                          row.Airport,
			Date:                             row.Date.Format("2006-01-02"),
			Kind:                             row.Kind,
			Icao24:                           row.Icao24,
			FirstSeen:                        row.FirstSeen,
			LastSeen:                         row.LastSeen,
			EstDepartureAirport:              row.EstDepartureAirport,
			EstArrivalAirport:                row.EstArrivalAirport,
			Callsign:                         row.Callsign,
			EstDepartureAirportHorizDistance: row.EstDepartureAirportHorizDistance,
			EstDepartureAirportVertDistance:  row.EstDepartureAirportVertDistance,
			EstArrivalAirportHorizDistance:   row.EstArrivalAirportHorizDistance,
			EstArrivalAirportVertDistance:    row.EstArrivalAirportVertDistance,
			DepartureAirportCandidatesCount:  row.DepartureAirportCandidatesCount,
			ArrivalAirportCandidatesCount:    row.ArrivalAirportCandidatesCount,
		})
	}

	w := parquet.NewGenericWriter[parquetFlight](file)
	if len(records) > 0 {
		if _, err := w.Write(records); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func int64String(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
