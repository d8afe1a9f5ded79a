package api

// PlaneInstance is one aircraft in a routeset request. Positions are
// accepted for client compatibility and ignored.
type PlaneInstance struct {
	Callsign string   `json:"callsign"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

// PlaneList is the routeset request body
type PlaneList struct {
	Planes []PlaneInstance `json:"planes" validate:"required"`
}

// Callsigns returns the callsigns in request order
func (p PlaneList) Callsigns() []string {
	out := make([]string, len(p.Planes))
	for i, plane := range p.Planes {
		out[i] = plane.Callsign
	}
	return out
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
