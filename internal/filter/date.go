package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// futureSlack tolerates boards that stamp postings in a timezone ahead of ours.
const futureSlack = 2 * 24 * time.Hour

var (
	isoDateRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	yearOnlyRegex = regexp.MustCompile(`\b(20\d{2})\b`)
	relativeRegex = regexp.MustCompile(`(\d+)\s*(minute|hour|day|week|month)s?\s+ago`)
)

// IsRecent reports whether a scraped posted-date string falls within maxAge of
// now. Unparseable or missing dates are kept; the catalog scorer sees them anyway.
func IsRecent(dateStr string, now time.Time, maxAge time.Duration) bool {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" || dateStr == "N/A" || strings.EqualFold(dateStr, "recent") {
		return true
	}

	if posted, ok := ParsePostedDate(dateStr, now); ok {
		return within(now, posted, maxAge)
	}

	//year only fallback
	if match := yearOnlyRegex.FindStringSubmatch(dateStr); match != nil {
		year, _ := strconv.Atoi(match[1])
		return year == now.Year() || year == now.Year()-1
	}

	return true
}

// ParsePostedDate understands ISO dates, dd/mm/yyyy and LinkedIn-style
// "3 days ago" strings.
func ParsePostedDate(dateStr string, now time.Time) (time.Time, bool) {
	if isoDateRegex.MatchString(dateStr) {
		if t, err := time.Parse("2006-01-02", dateStr[:10]); err == nil {
			return t, true
		}
	}

	if strings.Contains(dateStr, "/") {
		parts := strings.Split(dateStr, "/")
		if len(parts) >= 3 {
			day, errD := strconv.Atoi(strings.TrimSpace(parts[0]))
			month, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
			year, errY := strconv.Atoi(strings.TrimSpace(parts[2]))
			if errD == nil && errM == nil && errY == nil {
				return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
			}
		}
	}

	if match := relativeRegex.FindStringSubmatch(strings.ToLower(dateStr)); match != nil {
		n, _ := strconv.Atoi(match[1])
		var unit time.Duration
		switch match[2] {
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		case "month":
			unit = 30 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	return time.Time{}, false
}

func within(now, posted time.Time, maxAge time.Duration) bool {
	diff := now.Sub(posted)
	if diff > maxAge {
		return false
	}
	if diff < -futureSlack {
		return false
	}
	return true
}
