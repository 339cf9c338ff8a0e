// internal/app/policy/matchpolicy/matchpolicy.go
//
// Package matchpolicy decides which learners may share a group and in what
// order candidates are tried. It is pure: no I/O, no clock.
package matchpolicy

import (
	"fmt"
	"strings"

	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// Axis is a secondary attribute compared between two learners.
type Axis string

const (
	AxisCountry      Axis = "country"
	AxisAvailability Axis = "availability"
	AxisTopicModule  Axis = "topic_module"
	AxisLanguage     Axis = "language"
)

// Mode says how many axes must agree.
type Mode string

const (
	ModeAll Mode = "all" // every configured axis
	ModeAny Mode = "any" // at least one configured axis
)

// Wildcards accepted on either side of an axis comparison.
const (
	FlexibleAvailability = "Flexible"
	AllModules           = "All Modules"
)

// DefaultAxes is the axis set used when none is configured.
var DefaultAxes = []Axis{AxisCountry, AxisAvailability, AxisTopicModule}

// Policy is the configured constraint model.
type Policy struct {
	Axes []Axis
	Mode Mode
}

// Default returns the policy used when nothing is configured: every one of
// country, availability and topic module must agree.
func Default() Policy {
	return Policy{Axes: DefaultAxes, Mode: ModeAll}
}

// New parses configured axis names and mode. An empty axis list means
// DefaultAxes; an empty mode means ModeAll.
func New(axes []string, mode string) (Policy, error) {
	p := Policy{Mode: Mode(strings.ToLower(strings.TrimSpace(mode)))}
	if p.Mode == "" {
		p.Mode = ModeAll
	}
	if p.Mode != ModeAll && p.Mode != ModeAny {
		return Policy{}, fmt.Errorf("matchpolicy: unknown mode %q (want all or any)", mode)
	}
	seen := map[Axis]bool{}
	for _, a := range axes {
		ax := Axis(strings.ToLower(strings.TrimSpace(a)))
		switch ax {
		case AxisCountry, AxisAvailability, AxisTopicModule, AxisLanguage:
		default:
			return Policy{}, fmt.Errorf("matchpolicy: unknown axis %q", a)
		}
		if !seen[ax] {
			seen[ax] = true
			p.Axes = append(p.Axes, ax)
		}
	}
	if len(p.Axes) == 0 {
		p.Axes = DefaultAxes
	}
	return p, nil
}

// SamePartition reports whether a and b share program and cohort. This
// holds for every automatic grouping, relaxed or not.
func SamePartition(a, b models.Learner) bool {
	return strings.EqualFold(a.Program, b.Program) && strings.EqualFold(a.Cohort, b.Cohort)
}

// AxisMatch compares one axis between a and b.
func AxisMatch(ax Axis, a, b models.Learner) bool {
	switch ax {
	case AxisCountry:
		return strings.EqualFold(a.Country, b.Country)
	case AxisLanguage:
		return strings.EqualFold(a.Language, b.Language)
	case AxisAvailability:
		return wildcardEqual(a.Availability, b.Availability, FlexibleAvailability)
	case AxisTopicModule:
		return wildcardEqual(a.TopicModule, b.TopicModule, AllModules)
	}
	return false
}

func wildcardEqual(x, y, wildcard string) bool {
	return strings.EqualFold(x, wildcard) || strings.EqualFold(y, wildcard) || strings.EqualFold(x, y)
}

// AxesMatch applies the policy's axes and mode to a and b.
func (p Policy) AxesMatch(a, b models.Learner) bool {
	if len(p.Axes) == 0 {
		return true
	}
	for _, ax := range p.Axes {
		ok := AxisMatch(ax, a, b)
		if p.Mode == ModeAny && ok {
			return true
		}
		if p.Mode != ModeAny && !ok {
			return false
		}
	}
	return p.Mode != ModeAny
}

// Relaxed reports whether either learner opted in to global pairing, which
// waives the axes but never the partition.
func Relaxed(a, b models.Learner) bool {
	return a.OpenToGlobalPairing || b.OpenToGlobalPairing
}

// Tier classifies a compatible pair.
type Tier int

const (
	TierStrict  Tier = iota // axes agree
	TierRelaxed             // only compatible through global pairing
)

func (t Tier) String() string {
	if t == TierRelaxed {
		return "relaxed"
	}
	return "strict"
}

// Classify returns the tier of a and b, and false when they are not
// compatible at all.
func (p Policy) Classify(a, b models.Learner) (Tier, bool) {
	if !SamePartition(a, b) {
		return 0, false
	}
	if p.AxesMatch(a, b) {
		return TierStrict, true
	}
	if Relaxed(a, b) {
		return TierRelaxed, true
	}
	return 0, false
}

// Compatible reports whether a and b may share an automatically formed group.
func (p Policy) Compatible(a, b models.Learner) bool {
	_, ok := p.Classify(a, b)
	return ok
}

// GroupCompatible reports whether members are pairwise compatible and agree
// on group size, which must also equal len(members).
func (p Policy) GroupCompatible(members []models.Learner) bool {
	if len(members) < 2 || len(members) > 3 {
		return false
	}
	for i := range members {
		if members[i].GroupSize() != len(members) {
			return false
		}
		for j := i + 1; j < len(members); j++ {
			if !p.Compatible(members[i], members[j]) {
				return false
			}
		}
	}
	return true
}
