// Package earnings holds quarterly EPS reports and aligns them onto a daily timeline.
package earnings

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Report is one earnings release: the reported EPS against the consensus estimate.
type Report struct {
	Date        time.Time `json:"date" yaml:"-"`
	ActualEPS   float64   `json:"actual_eps" yaml:"actual_eps"`
	EPSEstimate float64   `json:"eps_estimate" yaml:"eps_estimate"`
}

// Surprise is the relative beat (positive) or miss (negative) against the estimate.
func (r Report) Surprise() float64 {
	if r.EPSEstimate == 0 {
		return math.NaN()
	}
	return (r.ActualEPS - r.EPSEstimate) / math.Abs(r.EPSEstimate)
}

// Calendar maps upper-case symbols to their earnings reports.
type Calendar map[string][]Report

// Reports returns the symbol's reports sorted by date.
func (c Calendar) Reports(symbol string) []Report {
	reports := append([]Report(nil), c[strings.ToUpper(symbol)]...)
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Date.Before(reports[j].Date) })
	return reports
}

// Add appends reports under the upper-cased symbol.
func (c Calendar) Add(symbol string, reports ...Report) {
	key := strings.ToUpper(symbol)
	c[key] = append(c[key], reports...)
}

// Align forward-fills reports onto dates. A report applies from the trading day
// whose calendar date equals its own; reports falling on non-trading days are
// dropped. Days before the first applied report are NaN. When two reports share
// a date the later one in reports wins.
func Align(dates []time.Time, reports []Report) (actual, estimate []float64) {
	byDay := make(map[string]Report, len(reports))
	for _, r := range reports {
		byDay[r.Date.UTC().Format(dateLayout)] = r
	}

	actual = make([]float64, len(dates))
	estimate = make([]float64, len(dates))
	lastActual, lastEstimate := math.NaN(), math.NaN()
	for i, d := range dates {
		if r, ok := byDay[d.UTC().Format(dateLayout)]; ok {
			lastActual, lastEstimate = r.ActualEPS, r.EPSEstimate
		}
		actual[i] = lastActual
		estimate[i] = lastEstimate
	}
	return actual, estimate
}

type yamlReport struct {
	Date        string  `yaml:"date"`
	ActualEPS   float64 `yaml:"actual_eps"`
	EPSEstimate float64 `yaml:"eps_estimate"`
}

/*
Calendar YAML example:
AAPL:
  - { date: "2023-05-04", actual_eps: 1.52, eps_estimate: 1.43 }
  - { date: "2023-08-03", actual_eps: 1.26, eps_estimate: 1.19 }
*/

// ParseCalendar decodes a YAML calendar.
func ParseCalendar(data []byte) (Calendar, error) {
	var raw map[string][]yamlReport
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse earnings calendar: %w", err)
	}
	cal := make(Calendar, len(raw))
	for symbol, entries := range raw {
		key := strings.ToUpper(symbol)
		for i, e := range entries {
			d, err := time.Parse(dateLayout, e.Date)
			if err != nil {
				return nil, fmt.Errorf("earnings %s entry %d: invalid date %q", symbol, i, e.Date)
			}
			cal[key] = append(cal[key], Report{Date: d, ActualEPS: e.ActualEPS, EPSEstimate: e.EPSEstimate})
		}
	}
	return cal, nil
}

// LoadCalendar reads a YAML calendar file.
func LoadCalendar(path string) (Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read earnings calendar: %w", err)
	}
	return ParseCalendar(data)
}

// Load returns the calendar at path, or the built-in one when path is empty.
func Load(path string) (Calendar, error) {
	if path == "" {
		return DefaultCalendar(), nil
	}
	return LoadCalendar(path)
}
