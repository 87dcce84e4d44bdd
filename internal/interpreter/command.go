// Package interpreter turns free-text patient and doctor messages into
// structured booking commands.
package interpreter

import "strings"

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentConfirm    Intent = "confirm"
	IntentInquiry    Intent = "inquiry"
	IntentAdd        Intent = "add"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentBlock      Intent = "block"
	IntentHelp       Intent = "help"
)

// Fields carries the slot details extracted from a message. Only the fields
// relevant to the intent are populated.
type Fields struct {
	TimeLabel    string `json:"time_label,omitempty"`
	NewTimeLabel string `json:"new_time_label,omitempty"`
	PatientName  string `json:"patient_name,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Command is the interpreter's output for one message.
type Command struct {
	Intent Intent `json:"intent"`
	Fields Fields `json:"fields"`
	Raw    string `json:"-"`
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest, leaving digits and punctuation alone ("10am" stays "10am").
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] -= 'a' - 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func trimPunct(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,!?;:\"'")
}
