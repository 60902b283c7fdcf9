package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	bulkSplit   = regexp.MustCompile(`\t+|,| {2,}`)
	bulkDateTok = regexp.MustCompile(`^([a-zA-Z]+)\s*(\d+)`)
)

var monthAliases = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// BulkEntry is one successfully parsed line of a pasted holiday list.
type BulkEntry struct {
	Line int    `json:"-"`
	Date Date   `json:"date"`
	Name string `json:"name"`
}

// ParseBulk reads a pasted holiday list such as
//
//	Jan 1	Wednesday	New Year
//	Aug 15, Friday, Independence Day
//
// Tokens are separated by tabs, commas, or two or more spaces. The first
// token is "<month> <day>", the last is the holiday name, anything between is
// ignored. Bad lines are reported with their 1-based line number and never
// abort the batch.
func ParseBulk(text string, year int) ([]BulkEntry, []string) {
	var (
		entries []BulkEntry
		errs    []string
	)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, raw := range lines {
		lineNum := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "date") && strings.Contains(lower, "holiday") {
			continue
		}

		parts := splitBulkLine(line)
		if len(parts) < 2 {
			errs = append(errs, fmt.Sprintf("Line %d: Invalid format - '%s'", lineNum, line))
			continue
		}
		dateTok, name := parts[0], parts[len(parts)-1]

		m := bulkDateTok.FindStringSubmatch(dateTok)
		if m == nil {
			errs = append(errs, fmt.Sprintf("Line %d: Could not parse date - '%s'", lineNum, dateTok))
			continue
		}
		monthTok := strings.ToLower(m[1])
		month, ok := monthAliases[monthTok]
		if !ok {
			errs = append(errs, fmt.Sprintf("Line %d: Unknown month - '%s'", lineNum, monthTok))
			continue
		}
		day, err := strconv.Atoi(m[2])
		if err != nil || day < 1 || day > daysIn(year, month) {
			errs = append(errs, fmt.Sprintf("Line %d: Invalid date - day is out of range for month (%s %s)", lineNum, month, m[2]))
			continue
		}
		entries = append(entries, BulkEntry{
			Line: lineNum,
			Date: Date{Year: year, Month: month, Day: day},
			Name: name,
		})
	}
	return entries, errs
}

func splitBulkLine(line string) []string {
	var out []string
	for _, p := range bulkSplit.Split(line, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
