package opensky

import "encoding/json"

// Kind selects which flight movements an API call concerns.
type Kind string

const (
	// KindDeparture fetches flights departing from an airport
	KindDeparture Kind = "departure"
	// KindArrival fetches flights arriving at an airport
	KindArrival Kind = "arrival"
)

// Flight is one entry of the OpenSky flights API response. Optional fields
// are pointers because the API omits or nulls them freely.
type Flight struct {
	Icao24                           string  `json:"icao24"`
	FirstSeen                        *int64  `json:"firstSeen"`
	EstDepartureAirport              *string `json:"estDepartureAirport"`
	LastSeen                         *int64  `json:"lastSeen"`
	EstArrivalAirport                *string `json:"estArrivalAirport"`
	Callsign                         *string `json:"callsign"`
	EstDepartureAirportHorizDistance *int    `json:"estDepartureAirportHorizDistance"`
	EstDepartureAirportVertDistance  *int    `json:"estDepartureAirportVertDistance"`
	EstArrivalAirportHorizDistance   *int    `json:"estArrivalAirportHorizDistance"`
	EstArrivalAirportVertDistance    *int    `json:"estArrivalAirportVertDistance"`
	DepartureAirportCandidatesCount  *int    `json:"departureAirportCandidatesCount"`
	ArrivalAirportCandidatesCount    *int    `json:"arrivalAirportCandidatesCount"`
}

// ParseFlights decodes a flights API payload.
func ParseFlights(raw []byte) ([]Flight, error) {
	var flights []Flight
	if err := json.Unmarshal(raw, &flights); err != nil {
		return nil, &ParseError{Err: err}
	}
	return flights, nil
}

// tokenResponse is the OAuth token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
