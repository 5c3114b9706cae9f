package fhirpath

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// UnitMap is a UCUM unit expressed as a map from base-unit symbol to its
// integer exponent. An entry with exponent zero is never stored; it is
// algebraically absent, the same as not mentioning the unit at all.
type UnitMap map[string]int

var unitComponentPattern = regexp.MustCompile(`([A-Za-z'"%]+)(-?\d*)`)

// parseUnitString turns a UCUM unit expression (already stripped of its
// surrounding quotes) into a UnitMap. The grammar handled is the naïve
// multiplicative/divisional form used throughout this module: components
// separated by `.` multiply, a `/` flips the sign of every exponent that
// follows it, and each component is `<symbol><optional signed integer
// exponent>`. This does not expand derived units (`W` stays `W`, never
// becoming `g.m2.s-3`) and does not apply SI-prefix decomposition; see
// DESIGN.md for the rationale.
func parseUnitString(raw string) UnitMap {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "'\"")
	if s == "" || s == "1" {
		return UnitMap{}
	}
	m := UnitMap{}
	sign := 1
	for _, part := range splitUnitParts(s) {
		if part.flipAfter {
			sign = -sign
			continue
		}
		match := unitComponentPattern.FindStringSubmatch(part.text)
		if match == nil {
			continue
		}
		symbol := match[1]
		exp := 1
		if match[2] != "" {
			if v, err := strconv.Atoi(match[2]); err == nil {
				exp = v
			}
		}
		addExponent(m, symbol, sign*exp)
	}
	return m
}

type unitPart struct {
	text      string
	flipAfter bool
}

// splitUnitParts walks the raw unit string once, splitting on `.` and `/`
// while recording that everything after a `/` must have its sign flipped.
func splitUnitParts(s string) []unitPart {
	var parts []unitPart
	flip := false
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, unitPart{text: cur.String()})
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.':
			flush()
		case '/':
			flush()
			flip = !flip
			parts = append(parts, unitPart{flipAfter: true})
		default:
			cur.WriteByte(s[i])
		}
	}
	flush()
	if !flip {
		return parts
	}
	return parts
}

func addExponent(m UnitMap, symbol string, delta int) {
	next := m[symbol] + delta
	if next == 0 {
		delete(m, symbol)
		return
	}
	m[symbol] = next
}

// formatUnitMap renders a UnitMap back to its canonical textual form:
// symbols in ascending lexicographic order, joined by `.`, with an
// exponent of 1 elided and negative exponents written as `symbol-N`.
func formatUnitMap(m UnitMap) string {
	if len(m) == 0 {
		return "1"
	}
	symbols := make([]string, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	var b strings.Builder
	for i, s := range symbols {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s)
		if e := m[s]; e != 1 {
			b.WriteString(strconv.Itoa(e))
		}
	}
	return b.String()
}

// multiplyUnits adds exponents component-wise.
func multiplyUnits(a, b UnitMap) UnitMap {
	out := UnitMap{}
	for s, e := range a {
		addExponent(out, s, e)
	}
	for s, e := range b {
		addExponent(out, s, e)
	}
	return out
}

// divideUnits subtracts b's exponents from a's.
func divideUnits(a, b UnitMap) UnitMap {
	out := UnitMap{}
	for s, e := range a {
		addExponent(out, s, e)
	}
	for s, e := range b {
		addExponent(out, s, -e)
	}
	return out
}

func unitMapsEqual(a, b UnitMap) bool {
	if len(a) != len(b) {
		return false
	}
	for s, e := range a {
		if b[s] != e {
			return false
		}
	}
	return true
}

// calendarDurationUnits maps the calendar-duration keyword forms FHIRPath
// accepts in a quantity literal (`4 years`, `3 days`) to their UCUM code.
var calendarDurationUnits = map[string]string{
	"year": "a", "years": "a",
	"month": "mo", "months": "mo",
	"week": "wk", "weeks": "wk",
	"day": "d", "days": "d",
	"hour": "h", "hours": "h",
	"minute": "min", "minutes": "min",
	"second": "s", "seconds": "s",
	"millisecond": "ms", "milliseconds": "ms",
}

// isCalendarLiteralUnit reports whether a UCUM unit code names one of the
// two variable-length calendar durations (year, month) that `=` must treat
// as non-comparable to their definite-duration neighbours, per the
// FHIRPath calendar-duration equality rule. Calendar-literal units are
// never rewritten by canonicalizeUnitSymbol: a year has no fixed SI
// scalar, so it stays `a`/`mo` rather than being folded into `s`.
func isCalendarLiteralUnit(unit string) bool {
	return unit == "a" || unit == "mo"
}

// canonicalizeUnitString rewrites a raw unit expression into its canonical
// form: calendar-duration keywords become their UCUM code, then the result
// is parsed and reformatted through a UnitMap so component order and
// elided exponents are normalised. It does not strip SI prefixes or expand
// derived units to a base-unit scalar; callers that need that do so via
// canonicalizeQuantityUnit below. Kept for calendar-literal-unit checks,
// which only care about the keyword mapping, not the scale.
func canonicalizeUnitString(unit string) string {
	if code, ok := calendarDurationUnits[unit]; ok {
		unit = code
	}
	return formatUnitMap(parseUnitString(unit))
}

// siPrefixExponent maps every UCUM SI prefix symbol FHIRPath quantities are
// expected to carry (yotta down to yocto) to its power-of-ten exponent.
// siPrefixesByLength lists the same keys ordered longest-first so prefix
// matching tries "da" (deca) before "d" (deci) and never misreads a
// two-character prefix as a one-character one plus a stray remainder.
var siPrefixExponent = map[string]int32{
	"Y": 24, "Z": 21, "E": 18, "P": 15, "T": 12, "G": 9, "M": 6, "k": 3,
	"h": 2, "da": 1,
	"d": -1, "c": -2, "m": -3, "u": -6, "n": -9, "p": -12, "f": -15,
	"a": -18, "z": -21, "y": -24,
}

var siPrefixesByLength = func() []string {
	keys := make([]string, 0, len(siPrefixExponent))
	for k := range siPrefixExponent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// baseUnits is the UCUM essence subset FHIRPath canonicalisation needs: the
// seven base units a quantity's derived or prefixed unit ultimately
// resolves to.
var baseUnits = map[string]bool{
	"s": true, "m": true, "g": true, "rad": true, "K": true, "C": true, "cd": true,
}

// unitFragment is what a single unit symbol (ignoring any exponent of its
// own) canonicalises to: a UnitMap of base units it expands into, each
// raised to the power that one occurrence of the symbol carries, plus the
// numeric factor one occurrence of the symbol must be multiplied by to
// convert its value into that base-unit form.
type unitFragment struct {
	units UnitMap
	scale *apd.Decimal
}

// derivedUnits are the single-symbol UCUM units, beyond the seven base
// units, that FHIRPath quantities are canonicalised against: the definite
// (fixed-length) durations and a couple of common derived units. Calendar
// durations `a`/`mo` are deliberately absent; see isCalendarLiteralUnit.
// Composite derived units such as `W` (watt, `g.m2.s-3`) are intentionally
// not listed here and fall through to canonicalizeUnitSymbol's identity case,
// preserving this module's naïve, non-decomposing UCUM algebra.
var derivedUnits = map[string]unitFragment{
	"min": {units: UnitMap{"s": 1}, scale: apd.New(60, 0)},
	"h":   {units: UnitMap{"s": 1}, scale: apd.New(3600, 0)},
	"d":   {units: UnitMap{"s": 1}, scale: apd.New(86400, 0)},
	"wk":  {units: UnitMap{"s": 1}, scale: apd.New(604800, 0)},
	"L":   {units: UnitMap{"m": 3}, scale: apd.New(1, -3)},
	"Hz":  {units: UnitMap{"s": -1}, scale: apd.New(1, 0)},
}

// unitScaleContext is a dedicated high-precision apd.Context for the scale
// arithmetic canonicalizeQuantityUnit performs (multiplying small exact
// powers of ten and small integer duration factors); it is independent of
// the evaluation-wide decimal context so a host narrowing WithAPDContext
// can never make a unit's own canonical scale lossy.
var unitScaleContext = apd.BaseContext.WithPrecision(40)

// canonicalizeUnitSymbol resolves a single UCUM symbol (no exponent of its
// own) to the unitFragment it canonicalises to. A symbol that is already a
// base unit, a calendar-literal unit, or unrecognised canonicalises to
// itself with a scale of 1; this is what keeps composite derived units
// like `W` from being decomposed.
func canonicalizeUnitSymbol(symbol string) unitFragment {
	identity := unitFragment{units: UnitMap{symbol: 1}, scale: apd.New(1, 0)}
	if isCalendarLiteralUnit(symbol) || baseUnits[symbol] {
		return identity
	}
	if frag, ok := derivedUnits[symbol]; ok {
		return frag
	}
	for _, prefix := range siPrefixesByLength {
		remainder := strings.TrimPrefix(symbol, prefix)
		if remainder == "" || remainder == symbol {
			continue
		}
		prefixScale := apd.New(1, siPrefixExponent[prefix])
		if baseUnits[remainder] {
			return unitFragment{units: UnitMap{remainder: 1}, scale: prefixScale}
		}
		if frag, ok := derivedUnits[remainder]; ok {
			combined := new(apd.Decimal)
			unitScaleContext.Mul(combined, prefixScale, frag.scale)
			return unitFragment{units: frag.units, scale: combined}
		}
	}
	return identity
}

// powDecimal raises base to an integer power using unitScaleContext,
// handling the negative-exponent case (a unit appearing as a denominator
// component, e.g. `s-2`) by inverting the positive power.
func powDecimal(base *apd.Decimal, exp int) *apd.Decimal {
	result := apd.New(1, 0)
	n := exp
	if n < 0 {
		n = -n
	}
	for i := 0; i < n; i++ {
		unitScaleContext.Mul(result, result, base)
	}
	if exp < 0 {
		inv := new(apd.Decimal)
		unitScaleContext.Quo(inv, apd.New(1, 0), result)
		return inv
	}
	return result
}

// canonicalizeQuantityUnit rewrites a raw unit expression into its fully
// canonical UnitMap (SI prefixes stripped, single-symbol derived units
// rewritten to their base-unit form) together with the numeric scale
// factor a value expressed in unit must be multiplied by to be expressed
// in that canonical form instead. This implements the prefix-strip and
// derived-unit-rewrite steps of quantity canonicalisation; composite
// derived units are left untouched, per canonicalizeUnitSymbol.
func canonicalizeQuantityUnit(unit string) (UnitMap, *apd.Decimal) {
	raw := unit
	if code, ok := calendarDurationUnits[raw]; ok {
		raw = code
	}
	parsed := parseUnitString(raw)
	out := UnitMap{}
	scale := apd.New(1, 0)
	for symbol, exp := range parsed {
		frag := canonicalizeUnitSymbol(symbol)
		for baseSymbol, baseExp := range frag.units {
			addExponent(out, baseSymbol, baseExp*exp)
		}
		factor := powDecimal(frag.scale, exp)
		unitScaleContext.Mul(scale, scale, factor)
	}
	return out, scale
}
