// Package timeservice constructs and converts timestamps in the exchange's
// trading zone. Chicago is authoritative for all slot/session boundaries;
// UTC is derived and used only for durable timestamps.
package timeservice

import (
	"errors"
	"fmt"
	"time"
)

// ExchangeZone is the fixed trading-session timezone for this strategy.
const ExchangeZone = "America/Chicago"

// ErrBadTimeFormat is returned when a "HH:mm" string fails to parse.
var ErrBadTimeFormat = errors.New("timeservice: bad time format, expected HH:mm")

// Service constructs and converts zoned instants against a single loaded
// *time.Location so every stream shares one DST-aware clock.
type Service struct {
	loc *time.Location
}

// New loads the exchange zone. Fails only if the host's tzdata is missing
// America/Chicago, which would be a deployment defect.
func New() (*Service, error) {
	loc, err := time.LoadLocation(ExchangeZone)
	if err != nil {
		return nil, fmt.Errorf("timeservice: load %s: %w", ExchangeZone, err)
	}
	return &Service{loc: loc}, nil
}

// MustNew is New but panics on failure; suitable for package-level init in
// mains and tests where a missing tzdata is unrecoverable anyway.
func MustNew() *Service {
	s, err := New()
	if err != nil {
		panic(err)
	}
	return s
}

// Location returns the loaded exchange timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ConstructChicagoTime combines a calendar date and a "HH:mm" string into a
// zoned instant in the exchange timezone.
func (s *Service) ConstructChicagoTime(date time.Time, hhmm string) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, hhmm)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || len(hhmm) != 5 || hhmm[2] != ':' {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, hhmm)
	}
	y, m, d := date.In(s.loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, s.loc), nil
}

// ConvertChicagoToUTC converts a zoned instant to UTC. Pure; DST is baked
// into the *time.Location offset lookup at the given instant.
func (s *Service) ConvertChicagoToUTC(zoned time.Time) time.Time {
	return zoned.In(s.loc).UTC()
}

// ConvertUTCToChicago converts a UTC instant into the exchange timezone.
func (s *Service) ConvertUTCToChicago(utc time.Time) time.Time {
	return utc.In(s.loc)
}

// ChicagoDate returns the trading date (midnight, Chicago-zoned) that a UTC
// instant falls on. Used to assign an incoming bar to a trading date.
func (s *Service) ChicagoDate(utc time.Time) time.Time {
	chi := utc.In(s.loc)
	y, m, d := chi.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// SameChicagoDate reports whether two UTC instants fall on the same
// Chicago trading date.
func (s *Service) SameChicagoDate(a, b time.Time) bool {
	return s.ChicagoDate(a).Equal(s.ChicagoDate(b))
}
