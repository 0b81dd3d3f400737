package flags

import (
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region flag
// Flag marks that a subject's metric entered a flaggable range. Flags are never cleared.
type Flag struct {
	Subject   subject.Key
	Code      string
	CreatedAt time.Time
}

// FlagCode derives the flag code for a metric range label.
func FlagCode(metric, label string) string {
	return metric + "_" + label
}

// Codes returns the codes of fs as a set.
func Codes(fs []Flag) map[string]struct{} {
	out := make(map[string]struct{}, len(fs))
	for _, f := range fs {
		out[f.Code] = struct{}{}
	}
	return out
}

// #endregion flag

// #region crossing
// Crossing is one range a metric value currently sits in.
type Crossing struct {
	Metric string
	Label  string
	Value  int
	Code   string
}

// #endregion crossing
