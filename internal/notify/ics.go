package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

const icsTimeFormat = "20060102T150405Z"

// Invite describes a single calendar invitation.
type Invite struct {
	UID         string
	Organizer   string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Stamp       time.Time
	Cancelled   bool
}

// BuildICS renders the invite as an iCalendar (RFC 5545) document with
// reminders 24 hours and 1 hour before the start. Cancelled invites use
// METHOD:CANCEL so calendar clients drop the event.
func BuildICS(inv Invite) []byte {
	method, status, sequence := "REQUEST", "CONFIRMED", 0
	if inv.Cancelled {
		method, status, sequence = "CANCEL", "CANCELLED", 1
	}
	if inv.End.IsZero() {
		inv.End = inv.Start.Add(time.Hour)
	}
	if inv.Stamp.IsZero() {
		inv.Stamp = time.Now()
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		fmt.Sprintf("PRODID:-//%s//Appointment//EN", icsEscape(inv.Organizer)),
		"CALSCALE:GREGORIAN",
		"METHOD:" + method,
		"BEGIN:VEVENT",
		"UID:" + inv.UID,
		"DTSTAMP:" + inv.Stamp.UTC().Format(icsTimeFormat),
		"DTSTART:" + inv.Start.UTC().Format(icsTimeFormat),
		"DTEND:" + inv.End.UTC().Format(icsTimeFormat),
		"SUMMARY:" + icsEscape(inv.Summary),
		"DESCRIPTION:" + icsEscape(inv.Description),
		"LOCATION:" + icsEscape(inv.Location),
		"STATUS:" + status,
		fmt.Sprintf("SEQUENCE:%d", sequence),
	}
	if !inv.Cancelled {
		lines = append(lines,
			"BEGIN:VALARM",
			"TRIGGER:-PT24H",
			"ACTION:DISPLAY",
			"DESCRIPTION:Appointment reminder - 24 hours",
			"END:VALARM",
			"BEGIN:VALARM",
			"TRIGGER:-PT1H",
			"ACTION:DISPLAY",
			"DESCRIPTION:Appointment reminder - 1 hour",
			"END:VALARM",
		)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(foldICSLine(line))
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// InviteUID builds the event UID for a booking in a given slot, e.g.
// "abc123-friday-10-00@aiclinic.com". A reschedule keeps the confirmation id
// but moves to a new UID, so the cancel for the old slot and the request for
// the new one never compete on SEQUENCE.
func InviteUID(confirmationID, timeLabel, clinicName string) string {
	domain := strings.ToLower(strings.ReplaceAll(clinicName, " ", ""))
	if domain == "" {
		domain = "clinic"
	}
	return fmt.Sprintf("%s-%s@%s.com", confirmationID, uidSlug(appointments.SlotKey(timeLabel)), domain)
}

func uidSlug(key string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func icsEscape(s string) string {
	return icsEscaper.Replace(s)
}

// foldICSLine wraps content lines longer than 75 octets.
func foldICSLine(line string) string {
	limit := 75
	if len(line) <= limit {
		return line
	}
	var b strings.Builder
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// continuation lines carry a leading space
		limit = 74
	}
	b.WriteString(line)
	return b.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
