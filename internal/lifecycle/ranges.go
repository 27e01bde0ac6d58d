package lifecycle

import (
	"strconv"
	"strings"

	reasoncodes "zk-tax-system/pkg/reason_codes"
)

// Range is a disclosed threshold of the form ">N".
type Range struct {
	Label     string `json:"label"`
	Threshold uint64 `json:"threshold"`
}

var rangeMenu = []uint64{300000, 500000, 700000, 1000000}

// Ranges lists the thresholds offered to clients.
func Ranges() []Range {
	out := make([]Range, 0, len(rangeMenu))
	for _, t := range rangeMenu {
		out = append(out, Range{Label: ">" + strconv.FormatUint(t, 10), Threshold: t})
	}
	return out
}

func ParseRange(label string) (Range, error) {
	trimmed := strings.TrimSpace(label)
	if !strings.HasPrefix(trimmed, ">") {
		return Range{}, reasoncodes.New(reasoncodes.ErrValidation, "range %q must have the form >N", label)
	}
	t, err := strconv.ParseUint(strings.TrimSpace(trimmed[1:]), 10, 64)
	if err != nil {
		return Range{}, reasoncodes.New(reasoncodes.ErrValidation, "range %q has no valid threshold", label)
	}
	return Range{Label: ">" + strconv.FormatUint(t, 10), Threshold: t}, nil
}

// Admits reports whether income satisfies the range predicate.
func (r Range) Admits(income uint64) bool {
	return income > r.Threshold
}
