package costing

import (
	"strconv"
	"strings"
)

var currencyReplacer = strings.NewReplacer(
	"INR", "", "inr", "",
	"Rs.", "", "Rs", "", "rs", "", "RS", "",
	"₹", "", "$", "",
	",", "", " ", "", "\t", "",
)

// ParseCostRange reads a configured cost string such as "Rs 5,000 - Rs 20,000",
// "2,00,000+" or "1000". An open-ended "a+" is estimated as (a, 2a).
// Anything unparseable yields (0, 0).
func ParseCostRange(s string) (min, max int64) {
	cleaned := currencyReplacer.Replace(s)
	if cleaned == "" {
		return 0, 0
	}

	if strings.Contains(cleaned, "+") {
		v, ok := parseAmount(strings.ReplaceAll(cleaned, "+", ""))
		if !ok {
			return 0, 0
		}
		return v, v * 2
	}

	if strings.Contains(cleaned, "-") {
		parts := strings.Split(cleaned, "-")
		if len(parts) != 2 {
			return 0, 0
		}
		lo, ok := parseAmount(parts[0])
		if !ok {
			return 0, 0
		}
		hi, ok := parseAmount(parts[1])
		if !ok {
			return 0, 0
		}
		return lo, hi
	}

	v, ok := parseAmount(cleaned)
	if !ok {
		return 0, 0
	}
	return v, v
}

func parseAmount(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
