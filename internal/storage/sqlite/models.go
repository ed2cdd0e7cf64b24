package sqlite

import "time"

// FlightRow is one parsed flight as stored, carrying the originating fetch
// unit's airport/day/kind for attribution.
type FlightRow struct {
	Airport                          string
	Date                             time.Time
	Kind                             string
	Icao24                           string
	FirstSeen                        int64
	LastSeen                         *int64
	EstDepartureAirport              *string
	EstArrivalAirport                *string
	Callsign                         *string
	EstDepartureAirportHorizDistance *int
	EstDepartureAirportVertDistance  *int
	EstArrivalAirportHorizDistance   *int
	EstArrivalAirportVertDistance    *int
	DepartureAirportCandidatesCount  *int
	ArrivalAirportCandidatesCount    *int
}

// QueryFilter narrows the export read path. Nil/empty fields are ignored.
type QueryFilter struct {
	DepartureAirports []string
	ArrivalAirports   []string
	StartDate         *time.Time
	EndDate           *time.Time
}
