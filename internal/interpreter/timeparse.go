package interpreter

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTimeLabel is used when a message names no day at all.
const DefaultTimeLabel = "Tomorrow 10:00 AM"

type hourChoice struct {
	markers []string
	label   string
}

type dayRule struct {
	literal  string
	choices  []hourChoice
	fallback string
}

// dayRules are scanned in order; the first literal present in the message
// wins. Days without choices always map to their fallback.
var dayRules = []dayRule{
	{literal: "friday", fallback: "Friday Morning", choices: []hourChoice{
		{markers: amMarkers(10), label: "Friday 10:00 AM"},
		{markers: amMarkers(11), label: "Friday 11:00 AM"},
		{markers: pmMarkers(2), label: "Friday 2:00 PM"},
	}},
	{literal: "saturday", fallback: "Saturday Morning", choices: []hourChoice{
		{markers: amMarkers(10), label: "Saturday 10:00 AM"},
		{markers: amMarkers(11), label: "Saturday 11:00 AM"},
	}},
	{literal: "sunday", fallback: "Sunday Morning", choices: []hourChoice{
		{markers: amMarkers(11), label: "Sunday 11:00 AM"},
		{markers: pmMarkers(1), label: "Sunday 1:00 PM"},
	}},
	{literal: "monday", fallback: "Monday Morning", choices: []hourChoice{
		{markers: amMarkers(9), label: "Monday 9:00 AM"},
		{markers: amMarkers(10), label: "Monday 10:00 AM"},
		{markers: pmMarkers(3), label: "Monday 3:00 PM"},
	}},
	{literal: "tuesday", fallback: "Tuesday 10:00 AM"},
	{literal: "wednesday", fallback: "Wednesday 10:00 AM"},
	{literal: "thursday", fallback: "Thursday 10:00 AM"},
	{literal: "tomorrow", fallback: "Tomorrow 10:00 AM"},
	{literal: "today", fallback: "Today 4:00 PM"},
}

func amMarkers(h int) []string {
	return []string{fmt.Sprint(h), fmt.Sprintf("%dam", h), fmt.Sprintf("%d:00", h), fmt.Sprintf("%d:00am", h)}
}

// pmMarkers also accepts a bare h or h:00 for 1 through 6, which the slot
// parser reads as afternoon clinic hours.
func pmMarkers(h int) []string {
	markers := []string{fmt.Sprintf("%dpm", h), fmt.Sprintf("%d:00pm", h), fmt.Sprintf("%d:00", h+12)}
	if h >= 1 && h <= 6 {
		markers = append(markers, fmt.Sprint(h), fmt.Sprintf("%d:00", h))
	}
	return markers
}

var (
	meridiemRE = regexp.MustCompile(`(\d)\s*([ap])\.?m\.?`)
	tokenRE    = regexp.MustCompile(`[a-z0-9:]+`)
)

// ExtractTimeLabel maps free text onto one of a fixed set of slot labels.
// It never fails: text without a day literal yields DefaultTimeLabel.
func ExtractTimeLabel(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range dayRules {
		if !strings.Contains(lower, rule.literal) {
			continue
		}
		tokens := hourTokens(lower)
		for _, choice := range rule.choices {
			for _, marker := range choice.markers {
				if tokens[marker] {
					return choice.label
				}
			}
		}
		return rule.fallback
	}
	return DefaultTimeLabel
}

// hourTokens normalises "10 am" and "10 a.m." to "10am" and returns the set of
// whole tokens in the text.
func hourTokens(lower string) map[string]bool {
	normalised := meridiemRE.ReplaceAllString(lower, "${1}${2}m")
	tokens := make(map[string]bool)
	for _, tok := range tokenRE.FindAllString(normalised, -1) {
		tokens[strings.Trim(tok, ":")] = true
	}
	return tokens
}
