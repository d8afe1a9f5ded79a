package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoute(t *testing.T) {
	tests := []struct {
		name string
		data string
		want RouteRecord
	}{
		{
			name: "plausible direct",
			data: `{"_airport_codes_iata":"CDG-ORD","airport_codes":"LFPG-KORD","callsign":"AFR136","plausible":1}`,
			want: RouteRecord{
				Callsign: "AFR136", Origin: "LFPG", Destination: "KORD",
				AirportCodes: "LFPG-KORD", AirportCodesIATA: "CDG-ORD", Plausibility: Plausible,
			},
		},
		{
			name: "implausible with via",
			data: `{"_airport_codes_iata":"FRA-BOM-SIN","airport_codes":"EDDF-VABB-WSSS","callsign":"DLH760","plausible":0}`,
			want: RouteRecord{
				Callsign: "DLH760", Origin: "EDDF", Destination: "WSSS", Via: []string{"VABB"},
				AirportCodes: "EDDF-VABB-WSSS", AirportCodesIATA: "FRA-BOM-SIN", Plausibility: Implausible,
			},
		},
		{
			name: "missing flag and callsign",
			data: `{"_airport_codes_iata":"FRA-JFK","airport_codes":"EDDF-KJFK"}`,
			want: RouteRecord{
				Callsign: "DLH400", Origin: "EDDF", Destination: "KJFK",
				AirportCodes: "EDDF-KJFK", AirportCodesIATA: "FRA-JFK", Plausibility: Unknown,
			},
		},
		{
			name: "unknown codes",
			data: `{"_airport_codes_iata":"unknown","airport_codes":"unknown","callsign":"KLM000","plausible":2}`,
			want: RouteRecord{
				Callsign: "KLM000", AirportCodes: "unknown", AirportCodesIATA: "unknown", Plausibility: Unknown,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRoute("DLH400", []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRoute_InvalidJSON(t *testing.T) {
	_, err := DecodeRoute("AFR136", []byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AFR136")
}
