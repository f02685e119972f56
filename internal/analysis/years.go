package analysis

import (
	"regexp"
	"sort"
	"strconv"
)

var startYearPattern = regexp.MustCompile(`^\s*(\d{4})`)

// StartYear extracts the calendar year an academic year begins in, so that
// "2021-22", "2021/22" and "2021" all map to 2021.
func StartYear(academicYear string) (int, bool) {
	m := startYearPattern.FindStringSubmatch(academicYear)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// CompareYears orders academic years chronologically, falling back to string order.
func CompareYears(a, b string) int {
	ya, okA := StartYear(a)
	yb, okB := StartYear(b)
	switch {
	case okA && okB && ya != yb:
		if ya < yb {
			return -1
		}
		return 1
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func SortYears(years []string) {
	sort.SliceStable(years, func(i, j int) bool {
		return CompareYears(years[i], years[j]) < 0
	})
}

// yearIndexes maps ordered years onto regression x values: the offset from
// the first start year when every year parses, otherwise the ordinal position.
func yearIndexes(years []string) []float64 {
	xs := make([]float64, len(years))
	if len(years) == 0 {
		return xs
	}
	first, ok := StartYear(years[0])
	if ok {
		for i, y := range years {
			start, ok2 := StartYear(y)
			if !ok2 {
				ok = false
				break
			}
			xs[i] = float64(start - first)
		}
	}
	if !ok || !strictlyIncreasing(xs) {
		for i := range xs {
			xs[i] = float64(i)
		}
	}
	return xs
}

func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}
