package appointments

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative day names accepted alongside weekdays.
const (
	DayToday    = "today"
	DayTomorrow = "tomorrow"
)

// Day parts used when a label names a day but no clock time.
const (
	PartMorning   = "morning"
	PartAfternoon = "afternoon"
	PartEvening   = "evening"
)

// SlotTime is the structured form of a time label: a day plus either a clock
// time or a day part. Hour is -1 when only a day part is known.
type SlotTime struct {
	Day    string
	Hour   int
	Minute int
	Part   string
}

var dayAliases = map[string]string{
	"sunday": "sunday", "sun": "sunday",
	"monday": "monday", "mon": "monday",
	"tuesday": "tuesday", "tue": "tuesday", "tues": "tuesday",
	"wednesday": "wednesday", "wed": "wednesday",
	"thursday": "thursday", "thu": "thursday", "thur": "thursday", "thurs": "thursday",
	"friday": "friday", "fri": "friday",
	"saturday": "saturday", "sat": "saturday",
	DayToday: DayToday, DayTomorrow: DayTomorrow,
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	wordRE  = regexp.MustCompile(`[a-z]+`)
	clockRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?(?:\s|$|[,.;!?)])`)
	spaceRE = regexp.MustCompile(`\s+`)
)

// ParseSlotTime extracts a structured slot from a human label such as
// "Friday 10:00 AM", "fri 10am" or "Saturday Morning". ok is false when the
// label has no recognisable day.
func ParseSlotTime(label string) (SlotTime, bool) {
	text := strings.ToLower(strings.TrimSpace(label))
	if text == "" {
		return SlotTime{}, false
	}

	st := SlotTime{Hour: -1}
	for _, word := range wordRE.FindAllString(text, -1) {
		if day, ok := dayAliases[word]; ok {
			st.Day = day
			break
		}
	}
	if st.Day == "" {
		return SlotTime{}, false
	}

	switch {
	case strings.Contains(text, "noon"):
		st.Hour, st.Minute = 12, 0
	case clockRE.MatchString(text + " "):
		m := clockRE.FindStringSubmatch(text + " ")
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour > 23 || minute > 59 {
			break
		}
		meridiem := strings.ReplaceAll(m[3], ".", "")
		switch {
		case meridiem == "pm" && hour < 12:
			hour += 12
		case meridiem == "am" && hour == 12:
			hour = 0
		case meridiem == "" && hour >= 1 && hour <= 6:
			// Clinic hours: a bare "2" or "3:30" means the afternoon.
			hour += 12
		}
		st.Hour, st.Minute = hour, minute
	}

	if st.Hour < 0 {
		switch {
		case strings.Contains(text, PartAfternoon):
			st.Part = PartAfternoon
		case strings.Contains(text, PartEvening):
			st.Part = PartEvening
		default:
			st.Part = PartMorning
		}
	}
	return st, true
}

// HasClock reports whether the slot names a specific clock time.
func (s SlotTime) HasClock() bool {
	return s.Hour >= 0
}

// Key is the comparable identity of the slot, e.g. "friday@10:00".
func (s SlotTime) Key() string {
	if s.HasClock() {
		return fmt.Sprintf("%s@%02d:%02d", s.Day, s.Hour, s.Minute)
	}
	return s.Day + "@" + s.Part
}

// Label renders the slot for display, e.g. "Friday 10:00 AM".
func (s SlotTime) Label() string {
	day := titleWord(s.Day)
	if !s.HasClock() {
		return day + " " + titleWord(s.Part)
	}
	hour, meridiem := s.Hour, "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	if hour > 12 {
		hour -= 12
	}
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%s %d:%02d %s", day, hour, s.Minute, meridiem)
}

// Resolve returns the next concrete instant for the slot relative to now.
// Weekdays resolve to their next occurrence (a week ahead when it is today);
// day parts resolve to 10:00, 14:00 or 17:00.
func (s SlotTime) Resolve(now time.Time) time.Time {
	hour, minute := s.Hour, s.Minute
	if !s.HasClock() {
		minute = 0
		switch s.Part {
		case PartAfternoon:
			hour = 14
		case PartEvening:
			hour = 17
		default:
			hour = 10
		}
	}
	base := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	switch s.Day {
	case DayToday:
		return base
	case DayTomorrow:
		return base.AddDate(0, 0, 1)
	}
	target, ok := weekdays[s.Day]
	if !ok {
		return base.AddDate(0, 0, 1)
	}
	ahead := (int(target) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return base.AddDate(0, 0, ahead)
}

// SlotKey normalises a time label into the registry's uniqueness key.
// Labels that do not parse fall back to their collapsed lowercase text.
func SlotKey(label string) string {
	if st, ok := ParseSlotTime(label); ok {
		return st.Key()
	}
	return "raw:" + spaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), " ")
}

// CanonicalLabel returns the display form of a parseable label, or the input
// unchanged.
func CanonicalLabel(label string) string {
	if st, ok := ParseSlotTime(label); ok && st.HasClock() {
		return st.Label()
	}
	return strings.TrimSpace(label)
}

func titleWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

// ResolveLabel resolves a display label to a concrete start time. Labels
// without a recognisable day resolve to tomorrow at 10:00.
func ResolveLabel(label string, now time.Time) time.Time {
	if st, ok := ParseSlotTime(label); ok {
		return st.Resolve(now)
	}
	return SlotTime{Day: DayTomorrow, Hour: 10}.Resolve(now)
}
