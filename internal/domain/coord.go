package domain

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	// KeyPrecision is the number of decimals used when matching coordinates
	// across feeds. Two points inside the same 0.00001 degree cell share a key.
	KeyPrecision = 5

	// DisplayPrecision is the number of decimals kept in rendered geometry.
	// It is never used for matching.
	DisplayPrecision = 6
)

// CoordinateKey identifies a physical location across independently sourced feeds.
type CoordinateKey string

// Coordinate is a longitude/latitude pair parsed from feed text.
// Valid is false when either component failed to parse; the failed
// component holds NaN.
type Coordinate struct {
	Lng   float64
	Lat   float64
	Valid bool
}

// ParseNumber parses a decimal coordinate component, returning NaN for
// empty or non-numeric text.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseCoordinate parses the lng and lat fields of a feed row.
func ParseCoordinate(lng, lat string) Coordinate {
	c := Coordinate{Lng: ParseNumber(lng), Lat: ParseNumber(lat)}
	c.Valid = !math.IsNaN(c.Lng) && !math.IsNaN(c.Lat) &&
		!math.IsInf(c.Lng, 0) && !math.IsInf(c.Lat, 0)
	return c
}

// Key normalizes raw lng/lat text into a CoordinateKey.
func Key(lng, lat string) CoordinateKey {
	return ParseCoordinate(lng, lat).Key()
}

// Key formats both components with KeyPrecision decimals joined by a comma.
// A NaN component renders as "NaN", so two rows without usable coordinates
// share the key "NaN,NaN" and never match a row that has them.
func (c Coordinate) Key() CoordinateKey {
	return CoordinateKey(fixed(c.Lng, KeyPrecision) + "," + fixed(c.Lat, KeyPrecision))
}

// Rounded returns the coordinate rounded to DisplayPrecision decimals.
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{
		Lng:   roundTo(c.Lng, DisplayPrecision),
		Lat:   roundTo(c.Lat, DisplayPrecision),
		Valid: c.Valid,
	}
}

// fixed formats v with prec decimals the way JavaScript's toFixed does:
// negative zero prints without a sign and exact halfway values round away
// from zero. strconv rounds those halfway values to even.
func fixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if v == 0 {
		v = 0
	}
	if s, ok := fixedTie(v, prec); ok {
		return s
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// fixedTie handles values whose exact binary value lies halfway between two
// prec-decimal results. ok is false for every other value.
func fixedTie(v float64, prec int) (s string, ok bool) {
	if math.IsInf(v, 0) {
		return "", false
	}
	// 256 bits hold a float64 mantissa times any small power of ten exactly.
	scaled := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(prec+1)), nil)
	scaled.Mul(scaled, new(big.Float).SetPrec(256).SetInt(scale))
	if !scaled.IsInt() {
		return "", false
	}
	n, _ := scaled.Int(nil)
	ten := big.NewInt(10)
	if new(big.Int).Mod(n, ten).Int64() != 5 {
		return "", false
	}
	n.Add(n, big.NewInt(5)).Quo(n, ten)

	digits := n.String()
	if len(digits) <= prec {
		digits = strings.Repeat("0", prec-len(digits)+1) + digits
	}
	if prec > 0 {
		digits = digits[:len(digits)-prec] + "." + digits[len(digits)-prec:]
	}
	if v < 0 {
		digits = "-" + digits
	}
	return digits, true
}

// roundTo goes through the decimal text form so the result matches what
// fixed() prints, avoiding binary drift from multiply/divide rounding.
func roundTo(v float64, prec int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', prec, 64), 64)
	if err != nil {
		return v
	}
	return r
}
