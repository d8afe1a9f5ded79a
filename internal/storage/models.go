package storage

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Plausibility is the data-quality flag set by the route population pipeline
type Plausibility string

const (
	Plausible   Plausibility = "plausible"
	Implausible Plausibility = "implausible"
	Unknown     Plausibility = "unknown"
)

// RouteRecord is the route information stored for one flight identifier
type RouteRecord struct {
	Callsign         string       `json:"callsign"`
	Origin           string       `json:"origin,omitempty"`
	Destination      string       `json:"destination,omitempty"`
	Via              []string     `json:"via,omitempty"`
	AirportCodes     string       `json:"airport_codes"`
	AirportCodesIATA string       `json:"_airport_codes_iata"`
	Plausibility     Plausibility `json:"plausibility"`
}

// storedRoute is the JSON document written by the population pipeline
type storedRoute struct {
	AirportCodesIATA string `json:"_airport_codes_iata"`
	AirportCodes     string `json:"airport_codes"`
	Callsign         string `json:"callsign"`
	Plausible        *int   `json:"plausible"`
}

// DecodeRoute parses a stored route value. key is used when the document
// carries no callsign of its own.
func DecodeRoute(key string, data []byte) (RouteRecord, error) {
	var doc storedRoute
	if err := json.Unmarshal(data, &doc); err != nil {
		return RouteRecord{}, fmt.Errorf("failed to decode route %s: %w", key, err)
	}

	record := RouteRecord{
		Callsign:         doc.Callsign,
		AirportCodes:     doc.AirportCodes,
		AirportCodesIATA: doc.AirportCodesIATA,
		Plausibility:     plausibilityFromInt(doc.Plausible),
	}
	if record.Callsign == "" {
		record.Callsign = key
	}

	legs := splitLegs(doc.AirportCodes)
	switch {
	case len(legs) == 1:
		record.Origin = legs[0]
	case len(legs) >= 2:
		record.Origin = legs[0]
		record.Destination = legs[len(legs)-1]
		if len(legs) > 2 {
			record.Via = legs[1 : len(legs)-1]
		}
	}

	return record, nil
}

func plausibilityFromInt(v *int) Plausibility {
	if v == nil {
		return Unknown
	}
	switch *v {
	case 1:
		return Plausible
	case 0:
		return Implausible
	default:
		return Unknown
	}
}

func splitLegs(codes string) []string {
	codes = strings.TrimSpace(codes)
	if codes == "" || strings.EqualFold(codes, "unknown") {
		return nil
	}
	legs := strings.Split(codes, "-")
	out := legs[:0]
	for _, leg := range legs {
		if leg = strings.TrimSpace(leg); leg != "" {
			out = append(out, leg)
		}
	}
	return out
}
