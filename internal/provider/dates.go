package provider

import (
	"fmt"
	"strconv"
	"time"
)

// dayPeriods maps lower-bound hours to bucket names. The bucket of an hour is
// the last threshold not greater than it; hours 21-23 and 0-5 both fall into
// Night.
var dayPeriods = []struct {
	hour int
	name string
}{
	{0, "Night"},
	{6, "Morning"},
	{12, "Noon"},
	{15, "Afternoon"},
	{19, "Evening"},
	{21, "Night"},
}

// BucketNames returns the distinct bucket names in threshold order.
func BucketNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range dayPeriods {
		if !seen[p.name] {
			seen[p.name] = true
			names = append(names, p.name)
		}
	}
	return names
}

// BucketForHour returns the day-period bucket of an hour of day.
func BucketForHour(hour int) string {
	pos := len(dayPeriods) - 1
	for idx := 0; idx < len(dayPeriods)-1; idx++ {
		if dayPeriods[idx+1].hour > hour {
			pos = idx
			break
		}
	}
	return dayPeriods[pos].name
}

// timeLayouts are tried in order when parsing timestamp strings.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func ageFromBirthday(clock func() time.Time) *Provider {
	return &Provider{
		Name:       "age_from_birthday",
		Args:       []ArgSpec{{Name: "birthday"}},
		ReturnType: "INT",
		Compute: func(vals []interface{}) (interface{}, error) {
			if len(vals) != 1 {
				return nil, fmt.Errorf("exactly one argument (birthday) was expected, %d were found", len(vals))
			}
			v := vals[0]
			if v == nil {
				return nil, nil
			}

			var birthday time.Time
			switch b := v.(type) {
			case time.Time:
				birthday = b
			case int:
				birthday = time.Date(b, time.January, 1, 0, 0, 0, 0, time.UTC)
			case int32:
				birthday = time.Date(int(b), time.January, 1, 0, 0, 0, 0, time.UTC)
			case int64:
				birthday = time.Date(int(b), time.January, 1, 0, 0, 0, 0, time.UTC)
			case string:
				// a bare 4-digit year means January 1 of that year
				if year, err := strconv.Atoi(b); err == nil && len(b) == 4 {
					birthday = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
					break
				}
				t, err := parseTimestamp(b)
				if err != nil {
					return nil, &InvalidBirthdayError{Value: v}
				}
				birthday = t
			default:
				return nil, &InvalidBirthdayError{Value: v}
			}

			return wholeYearsBetween(birthday, clock()), nil
		},
	}
}

// wholeYearsBetween returns calendar-aware whole years elapsed from `from` to
// `to`, not a naive day-count division.
func wholeYearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() ||
		(to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

func partOfDay() *Provider {
	return &Provider{
		Name:       "part_of_day",
		Args:       []ArgSpec{{Name: "timestamp"}},
		ReturnType: "VARCHAR(16)",
		Options:    BucketNames(),
		Compute: func(vals []interface{}) (interface{}, error) {
			if len(vals) != 1 {
				return nil, fmt.Errorf("exactly one argument (datetime) was expected, %d were found", len(vals))
			}
			v := vals[0]
			if v == nil {
				return nil, nil
			}

			var t time.Time
			switch ts := v.(type) {
			case time.Time:
				t = ts
			case string:
				parsed, err := parseTimestamp(ts)
				if err != nil {
					return nil, &InvalidArgumentError{Value: v, Want: "valid datetime"}
				}
				t = parsed
			default:
				return nil, &InvalidArgumentError{Value: v, Want: "valid datetime"}
			}

			return BucketForHour(t.Hour()), nil
		},
	}
}

func partOfDayFromHour() *Provider {
	return &Provider{
		Name:       "part_of_day_from_hour",
		Args:       []ArgSpec{{Name: "hour"}},
		ReturnType: "VARCHAR(16)",
		Options:    BucketNames(),
		Compute: func(vals []interface{}) (interface{}, error) {
			if len(vals) != 1 {
				return nil, fmt.Errorf("exactly one argument (hour) was expected, %d were found", len(vals))
			}
			v := vals[0]
			if v == nil {
				return nil, nil
			}

			// vectorized over sequences, element-wise nil propagation
			if seq, ok := v.([]interface{}); ok {
				out := make([]interface{}, len(seq))
				for i, el := range seq {
					if el == nil {
						out[i] = nil
						continue
					}
					hour, err := coerceHour(el)
					if err != nil {
						return nil, err
					}
					out[i] = BucketForHour(hour)
				}
				return out, nil
			}

			hour, err := coerceHour(v)
			if err != nil {
				return nil, err
			}
			return BucketForHour(hour), nil
		},
	}
}

func coerceHour(v interface{}) (int, error) {
	switch h := v.(type) {
	case int:
		return h, nil
	case int32:
		return int(h), nil
	case int64:
		return int(h), nil
	case float64:
		if h == float64(int(h)) {
			return int(h), nil
		}
	case string:
		if n, err := strconv.Atoi(h); err == nil {
			return n, nil
		}
	}
	return 0, &InvalidArgumentError{Value: v, Want: "24-based hour value"}
}
