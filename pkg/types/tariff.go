package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateType defines how a tariff prices energy.
type RateType string

const (
	RateTypeFlat RateType = "flat"
	RateTypeTOU  RateType = "tou"
)

// PeriodFlat is the period label reported when the flat rate applies.
const PeriodFlat = "flat"

// Tariff is the immutable rate configuration for a deployment.
type Tariff struct {
	Enabled        bool     `json:"enabled"`
	Currency       string   `json:"currency"`
	CurrencySymbol string   `json:"currencySymbol"`
	RateType       RateType `json:"rateType"`

	// FlatRate is the price per kWh for flat tariffs. For TOU tariffs it
	// doubles as the fallback rate when no period matches, but only when > 0.
	FlatRate float64 `json:"flatRate"`

	// TOURates are evaluated in declaration order; the first match wins.
	TOURates []TOUPeriod `json:"touRates,omitempty"`
}

// TOUPeriod defines one time-of-use schedule entry.
type TOUPeriod struct {
	Name string  `json:"name"`
	Rate float64 `json:"rate"`

	// StartTime and EndTime are "HH:MM" strings. An EndTime of "24:00" is
	// treated as 23:59:59 inclusive. EndTime before StartTime means the
	// period crosses midnight.
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	// Days the period applies to. Empty means every day.
	Days []time.Weekday `json:"days,omitempty"`
}

// minuteOfDay parses an "HH:MM" string into minutes since midnight.
// "24:00" parses to 1440 and is handled by the caller.
func minuteOfDay(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	min, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 24 || min < 0 || min > 59 || (hour == 24 && min != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return hour*60 + min, nil
}

// Matches reports whether t falls inside the period. It returns an error for
// unparsable start/end strings so callers can skip the period and keep
// evaluating the rest of the schedule.
func (p *TOUPeriod) Matches(t time.Time) (bool, error) {
	if len(p.Days) > 0 {
		var found bool
		dow := t.Weekday()
		for _, d := range p.Days {
			if d == dow {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	start, err := minuteOfDay(p.StartTime)
	if err != nil {
		return false, err
	}
	end, err := minuteOfDay(p.EndTime)
	if err != nil {
		return false, err
	}

	// Seconds since midnight so a 24:00 end covers through 23:59:59.
	now := t.Hour()*3600 + t.Minute()*60 + t.Second()
	startSec := start * 60
	endSec := end * 60
	if end == 24*60 {
		endSec = 24*3600 - 1
	}

	if startSec <= endSec {
		return now >= startSec && now <= endSec, nil
	}
	// Period crosses midnight (e.g. 22:00 to 06:00).
	return now >= startSec || now <= endSec, nil
}

// Validate returns human-readable problems with the tariff configuration.
// Problems are advisory: resolution skips malformed periods at runtime
// rather than failing.
func (t *Tariff) Validate() []string {
	if !t.Enabled {
		return nil
	}
	var problems []string
	switch t.RateType {
	case RateTypeFlat:
		if t.FlatRate <= 0 {
			problems = append(problems, "flat tariff enabled but no valid rate specified")
		}
	case RateTypeTOU:
		if len(t.TOURates) == 0 {
			problems = append(problems, "tou tariff enabled but no periods defined")
		}
		for i, p := range t.TOURates {
			if p.Name == "" {
				problems = append(problems, fmt.Sprintf("tou period %d missing name", i))
			}
			if p.Rate == 0 {
				problems = append(problems, fmt.Sprintf("tou period %d missing rate", i))
			}
			if _, err := minuteOfDay(p.StartTime); err != nil {
				problems = append(problems, fmt.Sprintf("tou period %d: %v", i, err))
			}
			if _, err := minuteOfDay(p.EndTime); err != nil {
				problems = append(problems, fmt.Sprintf("tou period %d: %v", i, err))
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown rate type %q", t.RateType))
	}
	return problems
}
