package interpreter

import (
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// DefaultDoctorReason is used when an add command names no reason.
const DefaultDoctorReason = "General consultation"

// HelpText lists the commands the doctor grammar understands.
const HelpText = `I can manage your schedule. Try one of:
- "Add appointment for John Smith on Friday 10am for checkup"
- "Reschedule the Friday 10am appointment to Saturday 11am"
- "Cancel the Saturday 11am appointment"
- "Block tomorrow 2pm"`

type rule struct {
	name    string
	intent  Intent
	pattern *regexp.Regexp
	build   func(m []string) (Fields, bool)
}

// doctorRules is evaluated top to bottom and the first rule whose pattern
// matches and whose builder accepts the captures wins. Changing the order
// changes how ambiguous phrasings are read.
var doctorRules = []rule{
	{
		name:    "add-with-reason",
		intent:  IntentAdd,
		pattern: regexp.MustCompile(`(?i)\b(?:add|create|schedule)\s+(?:an\s+)?appointment\s+for\s+(.+?)\s+(?:on|at)\s+(.+?)\s+for\s+(.+?)[.!?]*$`),
		build: func(m []string) (Fields, bool) {
			return Fields{
				PatientName: titleCase(m[1]),
				TimeLabel:   slotLabel(m[2]),
				Reason:      titleCase(m[3]),
			}, true
		},
	},
	{
		name:    "add",
		intent:  IntentAdd,
		pattern: regexp.MustCompile(`(?i)\b(?:add|create|schedule)\s+(?:an\s+)?appointment\s+for\s+(.+?)\s+(?:on|at)\s+(.+?)[.!?]*$`),
		build: func(m []string) (Fields, bool) {
			return Fields{
				PatientName: titleCase(m[1]),
				TimeLabel:   slotLabel(m[2]),
				Reason:      DefaultDoctorReason,
			}, true
		},
	},
	{
		name:    "modify",
		intent:  IntentReschedule,
		pattern: regexp.MustCompile(`(?i)\b(?:reschedule|move|change)\s+(?:the\s+)?(?:appointment\s+(?:on|at|for)\s+)?(.+?)\s+(?:appointment\s+)?to\s+(.+?)[.!?]*$`),
		build: func(m []string) (Fields, bool) {
			return Fields{
				TimeLabel:    slotLabel(m[1]),
				NewTimeLabel: slotLabel(m[2]),
			}, true
		},
	},
	{
		name:    "delete",
		intent:  IntentCancel,
		pattern: regexp.MustCompile(`(?i)\b(?:cancel|delete|remove)\s+(?:the\s+)?(.+?)\s+appointment\b`),
		build: func(m []string) (Fields, bool) {
			switch strings.ToLower(strings.TrimSpace(m[1])) {
			case "the", "an", "a", "my":
				return Fields{}, false
			}
			return Fields{TimeLabel: slotLabel(m[1])}, true
		},
	},
	{
		name:    "delete-on",
		intent:  IntentCancel,
		pattern: regexp.MustCompile(`(?i)\b(?:cancel|delete|remove)\s+(?:the\s+)?appointment\s+(?:on|at|for)\s+(.+?)[.!?]*$`),
		build: func(m []string) (Fields, bool) {
			return Fields{TimeLabel: slotLabel(m[1])}, true
		},
	},
	{
		name:    "block",
		intent:  IntentBlock,
		pattern: regexp.MustCompile(`(?i)\b(?:block|reserve)\s+(?:off\s+)?(.+?)[.!?]*$`),
		build: func(m []string) (Fields, bool) {
			return Fields{
				TimeLabel:   titleCase(m[1]),
				PatientName: appointments.BlockedPatientName,
			}, true
		},
	},
}

// ParseDoctor reads a doctor command. Unmatched input yields IntentHelp.
func ParseDoctor(message string) Command {
	text := strings.TrimSpace(message)
	for _, r := range doctorRules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		fields, ok := r.build(m)
		if !ok {
			continue
		}
		return Command{Intent: r.intent, Fields: fields, Raw: message}
	}
	return Command{Intent: IntentHelp, Raw: message}
}

// slotLabel title-cases a captured time and canonicalises it when it parses,
// so "saturday 11am" reads "Saturday 11:00 AM".
func slotLabel(capture string) string {
	return appointments.CanonicalLabel(titleCase(trimPunct(capture)))
}
