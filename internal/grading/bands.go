package grading

import (
	"fmt"
	"strings"
)

// Threshold is an inclusive lower bound on percentage for a grade label.
type Threshold struct {
	Min   float64
	Label string
}

// GradeBand maps a percentage to a letter grade. Thresholds are ordered from
// highest to lowest; anything below the last threshold gets Floor.
type GradeBand struct {
	Name       string
	Thresholds []Threshold
	Floor      string
}

// CoarseBand is the six-label table.
var CoarseBand = GradeBand{
	Name: "coarse",
	Thresholds: []Threshold{
		{Min: 90, Label: "A+"},
		{Min: 80, Label: "A"},
		{Min: 70, Label: "B"},
		{Min: 60, Label: "C"},
		{Min: 50, Label: "D"},
	},
	Floor: "F",
}

// FineBand is the eleven-label table with +/- modifiers.
var FineBand = GradeBand{
	Name: "fine",
	Thresholds: []Threshold{
		{Min: 97, Label: "A+"},
		{Min: 93, Label: "A"},
		{Min: 90, Label: "A-"},
		{Min: 87, Label: "B+"},
		{Min: 83, Label: "B"},
		{Min: 80, Label: "B-"},
		{Min: 77, Label: "C+"},
		{Min: 73, Label: "C"},
		{Min: 70, Label: "C-"},
		{Min: 60, Label: "D"},
	},
	Floor: "F",
}

// BandByName returns the table for "coarse" or "fine".
func BandByName(name string) (GradeBand, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CoarseBand.Name:
		return CoarseBand, nil
	case FineBand.Name:
		return FineBand, nil
	default:
		return GradeBand{}, fmt.Errorf("%w: unknown grade scale %q", ErrInvalidInput, name)
	}
}

// Grade returns the label for percentage.
func (b GradeBand) Grade(percentage float64) string {
	for _, t := range b.Thresholds {
		if percentage >= t.Min {
			return t.Label
		}
	}
	return b.Floor
}

// Labels lists every label of the table, best first.
func (b GradeBand) Labels() []string {
	labels := make([]string, 0, len(b.Thresholds)+1)
	for _, t := range b.Thresholds {
		labels = append(labels, t.Label)
	}
	return append(labels, b.Floor)
}
