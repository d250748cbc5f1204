// Package jsonutil tolerates the loose typing vision models use in JSON replies.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a raw value to a string, accepting numbers and
// booleans where a string was asked for. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleIntValue reads an integer given as a JSON number or a numeric
// string such as "7" or "7/10". Fractions round to nearest. ok is false when
// no number can be read.
func FlexibleIntValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return int(math.Round(numVal)), true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err != nil {
		return 0, false
	}
	strVal = strings.TrimSpace(strVal)
	if i := strings.IndexByte(strVal, '/'); i >= 0 {
		strVal = strings.TrimSpace(strVal[:i])
	}
	f, err := strconv.ParseFloat(strVal, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}
