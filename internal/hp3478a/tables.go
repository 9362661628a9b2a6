// internal/hp3478a/tables.go
package hp3478a

import (
	"fmt"
	"strconv"
	"strings"
)

// Function is the measurement function code (F command, status byte 0).
type Function int

const (
	DCVolts   Function = 1
	ACVolts   Function = 2
	Ohms2Wire Function = 3
	Ohms4Wire Function = 4
	DCAmps    Function = 5
	ACAmps    Function = 6
	ExtOhms   Function = 7
)

var functionNames = map[Function]string{
	DCVolts:   "VDC",
	ACVolts:   "VAC",
	Ohms2Wire: "Ω2W",
	Ohms4Wire: "Ω4W",
	DCAmps:    "ADC",
	ACAmps:    "AAC",
	ExtOhms:   "ExtΩ",
}

// ASCII spellings accepted by ParseFunction next to the display labels.
var functionAliases = map[string]Function{
	"OHM2W":  Ohms2Wire,
	"O2W":    Ohms2Wire,
	"OHM4W":  Ohms4Wire,
	"O4W":    Ohms4Wire,
	"EXTOHM": ExtOhms,
	"EXTO":   ExtOhms,
}

// FunctionName returns the label for a function code.
func FunctionName(f Function) (string, bool) {
	n, ok := functionNames[f]
	return n, ok
}

func (f Function) String() string {
	if n, ok := functionNames[f]; ok {
		return n
	}
	return "F" + strconv.Itoa(int(f))
}

// Valid reports whether f is one of the seven function codes.
func (f Function) Valid() bool {
	_, ok := functionNames[f]
	return ok
}

// ParseFunction accepts a label ("VDC", "Ω2W", ...), an ASCII alias
// ("OHM2W") or a code ("1".."7").
func ParseFunction(s string) (Function, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(t); err == nil && Function(n).Valid() {
		return Function(n), nil
	}
	for f, name := range functionNames {
		if strings.ToUpper(name) == t {
			return f, nil
		}
	}
	if f, ok := functionAliases[t]; ok {
		return f, nil
	}
	return 0, &ValidationError{Setting: "function", Value: s, Reason: "unknown function"}
}

// unit is the SI unit of a function's reading.
func (f Function) unit() string {
	switch f {
	case DCVolts, ACVolts:
		return "V"
	case Ohms2Wire, Ohms4Wire:
		return "Ω"
	case DCAmps, ACAmps:
		return "A"
	}
	return ""
}

// rangeOffset maps a status range code to a range exponent:
// exponent = code - offset. Functions missing here have no labeled ranges.
var rangeOffset = map[Function]struct{ offset, max int }{
	DCVolts:   {3, 5}, // 1 = 30mV .. 5 = 300V
	ACVolts:   {2, 4}, // 1 = 300mV .. 4 = 300V
	Ohms2Wire: {0, 7}, // 1 = 30Ω .. 7 = 30MΩ
	Ohms4Wire: {0, 7},
	DCAmps:    {2, 2}, // 1 = 300mA, 2 = 3A
	ACAmps:    {2, 2},
}

func rangeExponent(code int, f Function) (int, bool) {
	ro, ok := rangeOffset[f]
	if !ok || code < 1 || code > ro.max {
		return 0, false
	}
	return code - ro.offset, true
}

// RangeCode returns the status range code r selects under f.
// Auto range and ranges f does not have yield false.
func RangeCode(r Range, f Function) (int, bool) {
	ro, ok := rangeOffset[f]
	if !ok || r.auto || r.exp < minRangeExp || r.exp > maxRangeExp {
		return 0, false
	}
	code := r.exp + ro.offset
	if code < 1 || code > ro.max {
		return 0, false
	}
	return code, true
}

// RangeName returns the label of a range code under a function, e.g.
// "30mV" or "3MΩ". Combinations the meter does not have yield false.
func RangeName(code int, f Function) (string, bool) {
	exp, ok := rangeExponent(code, f)
	if !ok {
		return "", false
	}
	return rangeLabels[exp] + f.unit(), true
}

// RangeValue returns the full-scale value of a range code under a function.
func RangeValue(code int, f Function) (float64, bool) {
	exp, ok := rangeExponent(code, f)
	if !ok {
		return 0, false
	}
	return rangeValues[exp], true
}

// DigitsValue returns the resolution for a status digits code.
func DigitsValue(code int) (float64, bool) {
	switch code {
	case 1:
		return 5.5, true
	case 2:
		return 4.5, true
	case 3:
		return 3.5, true
	}
	return 0, false
}

const (
	minRangeExp = -2
	maxRangeExp = 7
)

var rangeLabels = map[int]string{
	-2: "30m",
	-1: "300m",
	0:  "3",
	1:  "30",
	2:  "300",
	3:  "3k",
	4:  "30k",
	5:  "300k",
	6:  "3M",
	7:  "30M",
}

var rangeValues = map[int]float64{
	-2: 0.03,
	-1: 0.3,
	0:  3.0,
	1:  30.0,
	2:  300.0,
	3:  3000.0,
	4:  30000.0,
	5:  300000.0,
	6:  3000000.0,
	7:  30000000.0,
}

// Range is a range request for the R command: one of the ten labeled
// full-scale values, or auto range.
type Range struct {
	exp  int
	auto bool
}

// RangeAuto requests auto ranging.
var RangeAuto = Range{auto: true}

// ParseRange accepts "30m", "300m", "3", "30", "300", "3k", "30k",
// "300k", "3M", "30M" and "A"/"AUTO" (any case).
// A trailing unit (V, A, Ω, OHM) is ignored.
func ParseRange(s string) (Range, error) {
	t := strings.TrimSpace(s)
	switch strings.ToUpper(t) {
	case "A", "AUTO":
		return RangeAuto, nil
	}

	for _, u := range []string{"Ω", "OHM", "ohm", "V", "A"} {
		if strings.HasSuffix(t, u) && len(t) > len(u) {
			t = strings.TrimSuffix(t, u)
			break
		}
	}
	for exp, label := range rangeLabels {
		if label == t {
			return Range{exp: exp}, nil
		}
	}
	return Range{}, &ValidationError{Setting: "range", Value: s, Reason: "unknown range"}
}

// NewRange returns the range for an R command exponent (-2..7).
func NewRange(exp int) (Range, error) {
	if exp < minRangeExp || exp > maxRangeExp {
		return Range{}, &ValidationError{Setting: "range", Value: strconv.Itoa(exp), Reason: "exponent must be -2..7"}
	}
	return Range{exp: exp}, nil
}

// RangeFor returns the range whose full scale is exactly v.
func RangeFor(v float64) (Range, error) {
	for exp, fs := range rangeValues {
		if fs == v {
			return Range{exp: exp}, nil
		}
	}
	return Range{}, &ValidationError{Setting: "range", Value: strconv.FormatFloat(v, 'g', -1, 64), Reason: "no range with this full scale"}
}

// Auto reports whether r requests auto ranging.
func (r Range) Auto() bool { return r.auto }

// Exponent is the R command argument (-2..7); meaningless for auto.
func (r Range) Exponent() int { return r.exp }

// Value is the full scale of r; 0 for auto.
func (r Range) Value() float64 {
	if r.auto {
		return 0
	}
	return rangeValues[r.exp]
}

func (r Range) String() string {
	if r.auto {
		return "AUTO"
	}
	return rangeLabels[r.exp]
}

func (r Range) command() string {
	if r.auto {
		return "RA"
	}
	return "R" + strconv.Itoa(r.exp)
}

// DigitsCode maps a requested resolution onto the N command argument.
// 3 and 3.5 select 3, 4 and 4.5 select 4, 5 and 5.5 select 5.
func DigitsCode(d float64) (int, error) {
	switch d {
	case 3, 3.5:
		return 3, nil
	case 4, 4.5:
		return 4, nil
	case 5, 5.5:
		return 5, nil
	}
	return 0, &ValidationError{
		Setting: "digits",
		Value:   strconv.FormatFloat(d, 'g', -1, 64),
		Reason:  "must be one of 3, 3.5, 4, 4.5, 5, 5.5",
	}
}

// digitsStatusCode is the status byte code reported after N<code>.
func digitsStatusCode(nCode int) int {
	return 6 - nCode // N5 -> 1, N4 -> 2, N3 -> 3
}

// Trigger is the trigger mode code (T command).
type Trigger int

const (
	TriggerInternal Trigger = 1
	TriggerExternal Trigger = 2
	TriggerSingle   Trigger = 3
	TriggerHold     Trigger = 4
	TriggerFast     Trigger = 5
)

var triggerNames = map[Trigger]string{
	TriggerInternal: "internal",
	TriggerExternal: "external",
	TriggerSingle:   "single",
	TriggerHold:     "hold",
	TriggerFast:     "fast",
}

func (t Trigger) String() string {
	if n, ok := triggerNames[t]; ok {
		return n
	}
	return "T" + strconv.Itoa(int(t))
}

// Valid reports whether t is one of the five trigger modes.
func (t Trigger) Valid() bool {
	_, ok := triggerNames[t]
	return ok
}

// ParseTrigger accepts a mode name or its code.
func ParseTrigger(s string) (Trigger, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(t); err == nil && Trigger(n).Valid() {
		return Trigger(n), nil
	}
	for tr, name := range triggerNames {
		if name == t {
			return tr, nil
		}
	}
	return 0, &ValidationError{Setting: "trigger", Value: s, Reason: "unknown trigger mode"}
}

// display limits
const (
	displayMinChar  = 32
	displayMaxChar  = 95
	displayMaxChars = 12
)

// ValidateDisplay checks text against the display's character set and
// length. '.' and ',' share a cell with the preceding character and do
// not count.
func ValidateDisplay(text string) error {
	n := 0
	for _, c := range text {
		if c < displayMinChar || c > displayMaxChar {
			return &ValidationError{
				Setting: "display",
				Value:   text,
				Reason:  fmt.Sprintf("character %q (%d) is not supported", c, c),
			}
		}
		if c != '.' && c != ',' {
			n++
		}
		if n > displayMaxChars {
			return &ValidationError{
				Setting: "display",
				Value:   text,
				Reason:  fmt.Sprintf("text too long; max %d characters", displayMaxChars),
			}
		}
	}
	return nil
}
