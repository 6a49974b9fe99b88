package matching

import (
	"fmt"
	"strings"
	"time"
)

type Dimension string

const (
	DimensionReligious  Dimension = "religious_level"
	DimensionAge        Dimension = "age"
	DimensionLocation   Dimension = "location"
	DimensionEducation  Dimension = "education"
	DimensionHeight     Dimension = "height"
	DimensionOccupation Dimension = "occupation"
	DimensionLanguage   Dimension = "language"
	DimensionOrigin     Dimension = "origin"
)

// Dimensions lists every scored dimension in descending default weight.
var Dimensions = []Dimension{
	DimensionReligious,
	DimensionAge,
	DimensionLocation,
	DimensionEducation,
	DimensionHeight,
	DimensionOccupation,
	DimensionLanguage,
	DimensionOrigin,
}

type Weights map[Dimension]int

// DefaultWeights sum to 100.
func DefaultWeights() Weights {
	return Weights{
		DimensionReligious:  25,
		DimensionAge:        20,
		DimensionLocation:   15,
		DimensionEducation:  10,
		DimensionHeight:     10,
		DimensionOccupation: 8,
		DimensionLanguage:   7,
		DimensionOrigin:     5,
	}
}

func (w Weights) total() int {
	t := 0
	for _, d := range Dimensions {
		if v := w[d]; v > 0 {
			t += v
		}
	}
	return t
}

type Verdict string

const (
	VerdictCompatible   Verdict = "compatible"
	VerdictIncompatible Verdict = "incompatible"
	// VerdictUnknown means a preference exists but the value it applies to
	// is missing.
	VerdictUnknown Verdict = "unknown"
)

// credit is the share of a dimension's weight a verdict earns.
func (v Verdict) credit() float64 {
	switch v {
	case VerdictCompatible:
		return 1
	case VerdictUnknown:
		return 0.5
	default:
		return 0
	}
}

// DimensionResult is the verdict for one dimension. TargetSide judges the
// candidate against the target's preference; CandidateSide the reverse.
type DimensionResult struct {
	Dimension     Dimension `json:"dimension"`
	Weight        int       `json:"weight"`
	Verdict       Verdict   `json:"verdict"`
	TargetSide    Verdict   `json:"target_side"`
	CandidateSide Verdict   `json:"candidate_side"`
	Reason        string    `json:"reason"`
}

// side is one direction of a bidirectional check.
type side struct {
	verdict Verdict
	reason  string
}

func combine(dim Dimension, weight int, targetSide, candidateSide side) DimensionResult {
	v := VerdictCompatible
	switch {
	case targetSide.verdict == VerdictIncompatible || candidateSide.verdict == VerdictIncompatible:
		v = VerdictIncompatible
	case targetSide.verdict == VerdictUnknown || candidateSide.verdict == VerdictUnknown:
		v = VerdictUnknown
	}
	return DimensionResult{
		Dimension:     dim,
		Weight:        weight,
		Verdict:       v,
		TargetSide:    targetSide.verdict,
		CandidateSide: candidateSide.verdict,
		Reason:        "target: " + targetSide.reason + "; candidate: " + candidateSide.reason,
	}
}

func noPreference() side {
	return side{verdict: VerdictCompatible, reason: "no preference"}
}

func checkRange(label string, min, max *int, value int, hasValue bool) side {
	if min == nil && max == nil {
		return noPreference()
	}
	want := describeRange(min, max)
	if !hasValue {
		return side{verdict: VerdictUnknown, reason: fmt.Sprintf("wants %s %s, value missing", label, want)}
	}
	if (min != nil && value < *min) || (max != nil && value > *max) {
		return side{verdict: VerdictIncompatible, reason: fmt.Sprintf("wants %s %s, got %d", label, want, value)}
	}
	return side{verdict: VerdictCompatible, reason: fmt.Sprintf("%s %d within %s", label, value, want)}
}

func describeRange(min, max *int) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%d-%d", *min, *max)
	case min != nil:
		return fmt.Sprintf(">=%d", *min)
	default:
		return fmt.Sprintf("<=%d", *max)
	}
}

func checkSet(label string, accepted []string, value string) side {
	set := toSet(accepted)
	if len(set) == 0 {
		return noPreference()
	}
	if normalize(value) == "" {
		return side{verdict: VerdictUnknown, reason: fmt.Sprintf("wants %s in [%s], value missing", label, strings.Join(accepted, ", "))}
	}
	if _, ok := set[normalize(value)]; !ok {
		return side{verdict: VerdictIncompatible, reason: fmt.Sprintf("wants %s in [%s], got %s", label, strings.Join(accepted, ", "), value)}
	}
	return side{verdict: VerdictCompatible, reason: fmt.Sprintf("%s %s accepted", label, value)}
}

func checkAnyOf(label string, accepted []string, values []string) side {
	set := toSet(accepted)
	if len(set) == 0 {
		return noPreference()
	}
	if len(values) == 0 {
		return side{verdict: VerdictUnknown, reason: fmt.Sprintf("wants %s in [%s], value missing", label, strings.Join(accepted, ", "))}
	}
	for _, v := range values {
		if _, ok := set[normalize(v)]; ok {
			return side{verdict: VerdictCompatible, reason: fmt.Sprintf("shares %s %s", label, v)}
		}
	}
	return side{verdict: VerdictIncompatible, reason: fmt.Sprintf("wants %s in [%s], got [%s]", label, strings.Join(accepted, ", "), strings.Join(values, ", "))}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := normalize(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func heightOf(p Profile) (int, bool) {
	if p.HeightCM == nil || *p.HeightCM <= 0 {
		return 0, false
	}
	return *p.HeightCM, true
}

// evaluateDimension runs both directions of one dimension for the pair.
func evaluateDimension(dim Dimension, weight int, target, candidate Profile, at time.Time) DimensionResult {
	tp, cp := target.Preferences, candidate.Preferences

	switch dim {
	case DimensionAge:
		ta, tok := target.Age(at)
		ca, cok := candidate.Age(at)
		return combine(dim, weight,
			checkRange("age", tp.AgeMin, tp.AgeMax, ca, cok),
			checkRange("age", cp.AgeMin, cp.AgeMax, ta, tok),
		)

	case DimensionHeight:
		th, tok := heightOf(target)
		ch, cok := heightOf(candidate)
		return combine(dim, weight,
			checkRange("height", tp.HeightMin, tp.HeightMax, ch, cok),
			checkRange("height", cp.HeightMin, cp.HeightMax, th, tok),
		)

	case DimensionLocation:
		return combine(dim, weight,
			checkSet("city", tp.Locations, candidate.City),
			checkSet("city", cp.Locations, target.City),
		)

	case DimensionReligious:
		res := combine(dim, weight,
			checkSet("religious level", tp.ReligiousLevels, candidate.ReligiousLevel),
			checkSet("religious level", cp.ReligiousLevels, target.ReligiousLevel),
		)
		if d, ok := ReligiousDistance(target.ReligiousLevel, candidate.ReligiousLevel); ok {
			res.Reason += fmt.Sprintf("; levels %d step(s) apart", d)
		}
		return res

	case DimensionEducation:
		return combine(dim, weight,
			checkSet("education", tp.Education, candidate.Education),
			checkSet("education", cp.Education, target.Education),
		)

	case DimensionOccupation:
		return combine(dim, weight,
			checkSet("occupation", tp.Occupations, candidate.Occupation),
			checkSet("occupation", cp.Occupations, target.Occupation),
		)

	case DimensionLanguage:
		return combine(dim, weight,
			checkAnyOf("language", tp.Languages, candidate.Languages()),
			checkAnyOf("language", cp.Languages, target.Languages()),
		)

	case DimensionOrigin:
		return combine(dim, weight,
			checkSet("origin", tp.Origins, candidate.Origin),
			checkSet("origin", cp.Origins, target.Origin),
		)
	}

	return DimensionResult{Dimension: dim, Weight: weight, Verdict: VerdictUnknown, Reason: "unsupported dimension"}
}
