package query

import (
	"math"
	"strconv"
	"strings"
)

var byteUnits = []struct {
	suffix string
	factor int64
}{
	{"kb", 1 << 10},
	{"mb", 1 << 20},
	{"gb", 1 << 30},
	{"b", 1},
}

// ParseByteSize is a TypeParser for sizes such as 10kb or 1.5mb. Plain
// numbers are left to the default int parser.
func ParseByteSize(raw string) (Value, bool) {
	lower := strings.ToLower(raw)
	for _, unit := range byteUnits {
		number, ok := strings.CutSuffix(lower, unit.suffix)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(number, 64)
		if err != nil || value < 0 {
			return Value{}, false
		}
		bytes := value * float64(unit.factor)
		if math.IsInf(bytes, 0) || math.IsNaN(bytes) || bytes >= math.MaxInt64 {
			return Value{}, false
		}
		return IntValue(int64(bytes)), true
	}
	return Value{}, false
}
