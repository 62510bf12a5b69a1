package helper

import (
	"math/rand"
	"strings"
	"time"
)

// RenderSpintax expands {a|b|c} groups with a random option after replacing
// the date placeholders. Groups without "|" that are not placeholders are
// left alone so JSON-ish text survives.
func RenderSpintax(text string) string {
	return renderSpintax(RenderDynamicVariables(text, time.Now()), rand.Intn)
}

func renderSpintax(text string, pick func(n int) int) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		end += start

		body := rest[start+1 : end]
		b.WriteString(rest[:start])
		if strings.Contains(body, "|") {
			options := strings.Split(body, "|")
			b.WriteString(options[pick(len(options))])
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

// RenderDynamicVariables replaces {TIME_GREETING}, {DAY_NAME} and {DATE}.
func RenderDynamicVariables(text string, now time.Time) string {
	hour := now.Hour()
	var greeting string
	switch {
	case hour >= 5 && hour < 12:
		greeting = "Good morning"
	case hour >= 12 && hour < 18:
		greeting = "Good afternoon"
	default:
		greeting = "Good evening"
	}

	r := strings.NewReplacer(
		"{TIME_GREETING}", greeting,
		"{DAY_NAME}", now.Weekday().String(),
		"{DATE}", now.Format("2 January 2006"),
	)
	return r.Replace(text)
}
