package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// MatchesCron reports whether a five field expression (minute hour
// day-of-month month weekday) matches t. Weekdays count from Monday = 0.
// Any expression without exactly five fields never matches.
func MatchesCron(expression string, t time.Time) bool {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return false
	}

	values := [5]int{
		t.Minute(),
		t.Hour(),
		t.Day(),
		int(t.Month()),
		(int(t.Weekday()) + 6) % 7,
	}

	for i, field := range fields {
		if !matchesCronField(field, values[i]) {
			return false
		}
	}

	return true
}

// ValidCron reports whether expression has exactly five fields, each in the
// grammar MatchesCron understands.
func ValidCron(expression string) bool {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return false
	}

	for _, field := range fields {
		if !validCronField(field) {
			return false
		}
	}

	return true
}

// matchesCronField supports *, n, a-b, a,b,c and */n. A field that does not
// parse does not match.
func matchesCronField(field string, value int) bool {
	match, ok := parseCronField(field)

	return ok && match(value)
}

func validCronField(field string) bool {
	_, ok := parseCronField(field)

	return ok
}

func parseCronField(field string) (func(int) bool, bool) {
	if field == "*" {
		return func(int) bool { return true }, true
	}

	if n, err := strconv.Atoi(field); err == nil {
		return func(value int) bool { return value == n }, true
	}

	if strings.Contains(field, ",") {
		items := strings.Split(field, ",")
		set := make(map[int]struct{}, len(items))

		for _, item := range items {
			n, err := strconv.Atoi(item)
			if err != nil {
				return nil, false
			}

			set[n] = struct{}{}
		}

		return func(value int) bool {
			_, ok := set[value]
			return ok
		}, true
	}

	if base, step, ok := strings.Cut(field, "/"); ok {
		n, err := strconv.Atoi(step)
		if base != "*" || err != nil || n <= 0 {
			return nil, false
		}

		return func(value int) bool { return value%n == 0 }, true
	}

	if startText, endText, ok := strings.Cut(field, "-"); ok {
		start, errStart := strconv.Atoi(startText)
		end, errEnd := strconv.Atoi(endText)

		if errStart != nil || errEnd != nil {
			return nil, false
		}

		return func(value int) bool { return value >= start && value <= end }, true
	}

	return nil, false
}
