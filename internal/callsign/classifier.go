package callsign

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultFlightPattern matches an airline ICAO prefix followed by a flight
// number that starts with a digit.
const DefaultFlightPattern = `^[A-Z]{3}[0-9][A-Z0-9]{0,4}$`

// DefaultMaxLength is the longest callsign accepted before it is treated as malformed
const DefaultMaxLength = 10

// Kind is the classification of a callsign
type Kind int

const (
	Malformed Kind = iota
	Registration
	FlightIdentifier
)

// String returns the metric/log label of the kind
func (k Kind) String() string {
	switch k {
	case FlightIdentifier:
		return "flight"
	case Registration:
		return "registration"
	default:
		return "malformed"
	}
}

// Normalization selects how a flight identifier is turned into a store key
type Normalization string

const (
	// NormalizeNone uses the trimmed callsign as the key
	NormalizeNone Normalization = "none"
	// NormalizeStripSuffix drops trailing letters after the flight number (DLH400A -> DLH400)
	NormalizeStripSuffix Normalization = "strip-suffix"
)

// Rules configures the classifier
type Rules struct {
	FlightPattern string        `toml:"flight_pattern"`
	MaxLength     int           `toml:"max_length"`
	Normalization Normalization `toml:"normalization"`
}

// DefaultRules returns the rules used by the tar1090 route store
func DefaultRules() Rules {
	return Rules{
		FlightPattern: DefaultFlightPattern,
		MaxLength:     DefaultMaxLength,
		Normalization: NormalizeNone,
	}
}

// Classification is the result of classifying one callsign.
// Key is only set for flight identifiers.
type Classification struct {
	Kind Kind
	Key  string
}

var (
	wellFormedPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)
	trailingLetters   = regexp.MustCompile(`^(.*[0-9])[A-Z]+$`)
)

// Classifier decides whether a callsign identifies a flight. It holds only
// compiled patterns and is safe for concurrent use.
type Classifier struct {
	flight        *regexp.Regexp
	maxLength     int
	normalization Normalization
}

// New creates a classifier from rules; zero fields fall back to the defaults
func New(rules Rules) (*Classifier, error) {
	defaults := DefaultRules()
	if rules.FlightPattern == "" {
		rules.FlightPattern = defaults.FlightPattern
	}
	if rules.MaxLength <= 0 {
		rules.MaxLength = defaults.MaxLength
	}
	if rules.Normalization == "" {
		rules.Normalization = defaults.Normalization
	}

	switch rules.Normalization {
	case NormalizeNone, NormalizeStripSuffix:
	default:
		return nil, fmt.Errorf("unknown callsign normalization: %s", rules.Normalization)
	}

	flight, err := regexp.Compile(rules.FlightPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid flight pattern: %w", err)
	}

	return &Classifier{
		flight:        flight,
		maxLength:     rules.MaxLength,
		normalization: rules.Normalization,
	}, nil
}

// MustNew is New for static rules, panics on error
func MustNew(rules Rules) *Classifier {
	c, err := New(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify classifies a raw callsign as reported by the tracking source
func (c *Classifier) Classify(raw string) Classification {
	cs := Clean(raw)
	if cs == "" || len(cs) > c.maxLength || !wellFormedPattern.MatchString(cs) {
		return Classification{Kind: Malformed}
	}

	// Tail numbers with a nationality hyphen never carry route meaning
	if strings.Contains(cs, "-") || !c.flight.MatchString(cs) {
		return Classification{Kind: Registration}
	}

	return Classification{Kind: FlightIdentifier, Key: c.normalize(cs)}
}

func (c *Classifier) normalize(cs string) string {
	if c.normalization != NormalizeStripSuffix {
		return cs
	}
	// The airline prefix survives because the match must end on a digit
	if m := trailingLetters.FindStringSubmatch(cs); m != nil {
		return m[1]
	}
	return cs
}

// Clean removes padding and NUL bytes that ADS-B decoders leave in flight names
func Clean(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))
}
