package interpreter

import (
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// ConfirmPrefix marks the second phase of a patient booking.
const ConfirmPrefix = "CONFIRM_BOOKING:"

var bookingKeywords = []string{
	"appointment",
	"book",
	"schedule",
	"see doctor",
	"see the doctor",
	"visit",
	"consultation",
	"checkup",
	"check-up",
}

var (
	confirmRE = regexp.MustCompile(`(?i)^\s*confirm_booking:\s*`)
	nameRE    = regexp.MustCompile(`(?i)\b(?:my name is|this is)\s+([a-z][a-z'\-]*(?:\s+[a-z][a-z'\-]*)?)`)
	clockTok  = regexp.MustCompile(`^\d{1,2}(?::\d{2})?(?:am|pm)?$`)
)

var timeWords = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true,
	"today": true, "tomorrow": true, "tonight": true,
	"morning": true, "afternoon": true, "evening": true, "noon": true,
}

var timeConnectors = map[string]bool{
	"on": true, "at": true, "this": true, "next": true, "around": true, "by": true,
}

var nameStopWords = map[string]bool{
	"and": true, "i": true, "for": true, "want": true, "would": true, "need": true, "here": true,
}

// ParsePatient classifies a patient message. Booking requests and
// confirmations carry a time label and reason; anything else is an inquiry
// and no slot is extracted.
func ParsePatient(message, location string) Command {
	if strings.TrimSpace(location) == "" {
		location = appointments.DefaultLocation
	}
	cmd := Command{Raw: message, Fields: Fields{Location: location}}

	text := message
	if loc := confirmRE.FindStringIndex(message); loc != nil {
		cmd.Intent = IntentConfirm
		text = message[loc[1]:]
	} else if isBookingRequest(message) {
		cmd.Intent = IntentBook
	} else {
		cmd.Intent = IntentInquiry
		cmd.Fields.Reason = strings.TrimSpace(message)
		return cmd
	}

	cmd.Fields.TimeLabel = ExtractTimeLabel(text)
	cmd.Fields.Reason = extractReason(text)
	cmd.Fields.PatientName = extractName(text)
	return cmd
}

func isBookingRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range bookingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractReason returns the text after the last " for " that is not a time
// phrase, falling back to the whole message.
func extractReason(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	var starts []int
	for offset := 0; ; {
		i := strings.Index(lower[offset:], " for ")
		if i < 0 {
			break
		}
		starts = append(starts, offset+i)
		offset += i + len(" for ")
	}

	for i := len(starts) - 1; i >= 0; i-- {
		end := len(trimmed)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		segment := cutTimeClause(trimmed[starts[i]+len(" for ") : end])
		segment = stripArticle(trimPunct(segment))
		if segment != "" {
			return segment
		}
	}
	return trimmed
}

// cutTimeClause drops everything from the first time word, or a connector
// followed by one, onward.
func cutTimeClause(segment string) string {
	words := strings.Fields(segment)
	for i, w := range words {
		lw := strings.ToLower(trimPunct(w))
		if isTimeWord(lw) {
			return strings.Join(words[:i], " ")
		}
		if timeConnectors[lw] && i+1 < len(words) && isTimeWord(strings.ToLower(trimPunct(words[i+1]))) {
			return strings.Join(words[:i], " ")
		}
	}
	return segment
}

func isTimeWord(w string) bool {
	return timeWords[w] || clockTok.MatchString(w)
}

func stripArticle(s string) string {
	lower := strings.ToLower(s)
	for _, article := range []string{"a ", "an ", "the "} {
		if strings.HasPrefix(lower, article) {
			return strings.TrimSpace(s[len(article):])
		}
	}
	return s
}

func extractName(text string) string {
	m := nameRE.FindStringSubmatch(text)
	if m == nil {
		return appointments.DefaultPatientName
	}
	words := strings.Fields(m[1])
	if len(words) == 2 && nameStopWords[strings.ToLower(words[1])] {
		words = words[:1]
	}
	if nameStopWords[strings.ToLower(words[0])] {
		return appointments.DefaultPatientName
	}
	return titleCase(strings.Join(words, " "))
}
