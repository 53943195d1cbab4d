// Package decimalx holds small parsing and naming helpers shared by the
// bar builders and the store: bar-spec grammar parsing, pair-slug
// derivation, and epoch-anchored time bucketing. None of it touches
// decimal arithmetic directly beyond carrying the parsed numeric
// threshold — it exists so source/store/bar don't each reinvent these
// string rules.
package decimalx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Family is one of the ten bar families named in the bar-spec grammar.
type Family string

const (
	FamilyTick   Family = "tick"
	FamilyVolume Family = "volume"
	FamilyDollar Family = "dollar"
	FamilyTime   Family = "time"
	FamilyTIB    Family = "tib"
	FamilyVIB    Family = "vib"
	FamilyDIB    Family = "dib"
	FamilyTRB    Family = "trb"
	FamilyVRB    Family = "vrb"
	FamilyDRB    Family = "drb"
)

// BarSpec is a parsed "<family>_<param>" identifier.
type BarSpec struct {
	Raw      string
	Family   Family
	IntParam int64           // tick_N, tib_W, vib_W, dib_W, trb_W, vrb_W, drb_W
	DecParam decimal.Decimal // volume_V, dollar_D
	Duration time.Duration   // time_<30s|5m|1h|1d>
}

var specRe = regexp.MustCompile(`^([a-z]+)_(.+)$`)

// ParseBarSpec parses the bar-spec grammar from §6. Unparseable specs are
// a fatal input error at the CLI boundary — here they are simply
// returned as a non-nil error for the caller to classify.
func ParseBarSpec(spec string) (BarSpec, error) {
	m := specRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(spec)))
	if m == nil {
		return BarSpec{}, fmt.Errorf("decimalx: malformed bar spec %q", spec)
	}
	fam := Family(m[1])
	param := m[2]

	switch fam {
	case FamilyTick, FamilyTIB, FamilyVIB, FamilyDIB, FamilyTRB, FamilyVRB, FamilyDRB:
		n, err := strconv.ParseInt(param, 10, 64)
		if err != nil || n <= 0 {
			return BarSpec{}, fmt.Errorf("decimalx: bad integer param in %q: %w", spec, err)
		}
		return BarSpec{Raw: spec, Family: fam, IntParam: n}, nil
	case FamilyVolume, FamilyDollar:
		d, err := decimal.NewFromString(param)
		if err != nil || !d.IsPositive() {
			return BarSpec{}, fmt.Errorf("decimalx: bad decimal param in %q: %w", spec, err)
		}
		return BarSpec{Raw: spec, Family: fam, DecParam: d}, nil
	case FamilyTime:
		dur, err := parseTimeSuffix(param)
		if err != nil {
			return BarSpec{}, fmt.Errorf("decimalx: %w", err)
		}
		return BarSpec{Raw: spec, Family: fam, Duration: dur}, nil
	default:
		return BarSpec{}, fmt.Errorf("decimalx: unknown bar family %q in %q", fam, spec)
	}
}

func parseTimeSuffix(param string) (time.Duration, error) {
	if param == "" {
		return 0, fmt.Errorf("empty time param")
	}
	unit := param[len(param)-1]
	numPart := param[:len(param)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad time param %q", param)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported time unit %q", string(unit))
	}
}

// PairSlug lowercases a pair symbol and replaces non-alphanumerics with
// underscores, per §6, for use as a bar table name fragment.
func PairSlug(pair string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(pair) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// EpochBucket returns the index of the Δ-wide, epoch-anchored bucket
// that ts falls into: floor(ts.Unix() / Δ). Spec §9 mandates
// epoch-anchored alignment, not first-trade anchoring.
func EpochBucket(ts time.Time, delta time.Duration) int64 {
	secs := ts.Unix()
	d := int64(delta / time.Second)
	if d <= 0 {
		return secs
	}
	if secs >= 0 {
		return secs / d
	}
	// floor division for negative timestamps (pre-1970 trades are not a
	// realistic input, but floor must still hold for correctness).
	q := secs / d
	if secs%d != 0 {
		q--
	}
	return q
}

// BucketStart returns the UTC instant the bucket containing ts starts at.
func BucketStart(ts time.Time, delta time.Duration) time.Time {
	idx := EpochBucket(ts, delta)
	return time.Unix(idx*int64(delta/time.Second), 0).UTC()
}
