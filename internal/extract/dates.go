// Package extract holds the pure entity extractors: due dates, priority
// keywords and field validators. Nothing here keeps state between calls.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// DateFailure classifies why a date phrase was rejected.
type DateFailure string

const (
	DateOK          DateFailure = ""
	DatePast        DateFailure = "past_date"
	DateTooFar      DateFailure = "too_far_future"
	DateUnparseable DateFailure = "unparseable"
	DateAmbiguous   DateFailure = "ambiguous"
)

// DateOutcome is either a resolved instant or a typed failure.
type DateOutcome struct {
	Time       time.Time
	Failure    DateFailure
	Confidence float64
	Input      string
	// Options lists readable readings of an ambiguous input.
	Options []string
	// MaxYears is the future bound that produced DateTooFar.
	MaxYears int
}

// OK reports whether a usable instant was produced.
func (o DateOutcome) OK() bool { return o.Failure == DateOK }

// Err converts a failure into a field-scoped validation error.
func (o DateOutcome) Err() error {
	var reason string
	switch o.Failure {
	case DateOK:
		return nil
	case DatePast:
		reason = "that date is in the past"
	case DateTooFar:
		reason = fmt.Sprintf("that date is more than %d years away", o.MaxYears)
	case DateAmbiguous:
		reason = "that date could mean more than one day"
		if len(o.Options) > 0 {
			reason += " (" + strings.Join(o.Options, " or ") + ")"
		}
	default:
		reason = "I couldn't understand that date"
	}
	return &types.ValidationError{Field: types.FieldDueDate, Value: o.Input, Reason: reason}
}

// DateParser turns natural-language due dates into validated instants.
type DateParser struct {
	now       func() time.Time
	loc       *time.Location
	maxYears  int
	dueHour   int
	dueMinute int
	fallback  *when.Parser
}

// DateOption configures a DateParser.
type DateOption func(*DateParser)

// WithClock overrides the source of "now".
func WithClock(now func() time.Time) DateOption {
	return func(p *DateParser) { p.now = now }
}

// WithLocation sets the zone dates without an explicit offset are read in.
func WithLocation(loc *time.Location) DateOption {
	return func(p *DateParser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithMaxFutureYears bounds how far ahead a due date may be.
func WithMaxFutureYears(years int) DateOption {
	return func(p *DateParser) {
		if years > 0 {
			p.maxYears = years
		}
	}
}

// WithDefaultDueTime sets the clock time used when only a day is given.
func WithDefaultDueTime(hour, minute int) DateOption {
	return func(p *DateParser) {
		if hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
			p.dueHour, p.dueMinute = hour, minute
		}
	}
}

// NewDateParser returns a parser with a 10 year horizon and 23:59 default time.
func NewDateParser(opts ...DateOption) *DateParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	p := &DateParser{
		now:       time.Now,
		loc:       time.Local,
		maxYears:  10,
		dueHour:   23,
		dueMinute: 59,
		fallback:  w,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// candidate is an unvalidated parse. final marks a failure on a recognised
// form that must not be retried by the fallback grammar.
type candidate struct {
	t       time.Time
	conf    float64
	failure DateFailure
	options []string
	final   bool
}

func failed(f DateFailure) candidate { return candidate{failure: f} }

func invalid() candidate { return candidate{failure: DateUnparseable, final: true} }

// Parse resolves text relative to the parser's clock.
func (p *DateParser) Parse(text string) DateOutcome {
	raw := strings.TrimSpace(text)
	out := DateOutcome{Input: raw, MaxYears: p.maxYears}
	if raw == "" {
		out.Failure = DateUnparseable
		return out
	}
	now := p.now().In(p.loc)

	c, ok := p.parseISO(raw)
	if !ok {
		c = p.parseNatural(normalizeDate(raw), now)
	}
	if c.failure != DateOK {
		out.Failure = c.failure
		out.Options = c.options
		logging.ExtractionDebug("date %q rejected: %s", raw, c.failure)
		return out
	}

	out.Failure = p.bound(c.t, now)
	if out.Failure == DateOK {
		out.Time = c.t
		out.Confidence = c.conf
	}
	logging.ExtractionDebug("date %q -> %v (failure=%q confidence=%.2f)", raw, c.t, out.Failure, c.conf)
	return out
}

// Check re-validates an already resolved instant against the current clock.
// A due date confirmed yesterday for "in an hour" may have expired since.
func (p *DateParser) Check(t time.Time) DateOutcome {
	out := DateOutcome{Input: t.Format(time.RFC3339), MaxYears: p.maxYears}
	out.Failure = p.bound(t, p.now().In(p.loc))
	if out.Failure == DateOK {
		out.Time = t
		out.Confidence = 1
	}
	return out
}

// Now returns the parser's clock in its location.
func (p *DateParser) Now() time.Time { return p.now().In(p.loc) }

func (p *DateParser) bound(t, now time.Time) DateFailure {
	switch {
	case t.Before(now):
		return DatePast
	case t.After(now.AddDate(p.maxYears, 0, 0)):
		return DateTooFar
	}
	return DateOK
}

// =============================================================================
// ISO 8601
// =============================================================================

var isoLayouts = []struct {
	layout   string
	dateOnly bool
	zoned    bool
}{
	{time.RFC3339Nano, false, true},
	{"2006-01-02T15:04Z07:00", false, true},
	{"2006-01-02T15:04:05", false, false},
	{"2006-01-02T15:04", false, false},
	{"2006-01-02 15:04:05", false, false},
	{"2006-01-02 15:04", false, false},
	{"2006-01-02", true, false},
}

func (p *DateParser) parseISO(raw string) (candidate, bool) {
	s := strings.TrimSpace(raw)
	for _, l := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, p.loc)
		}
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = p.at(t, clock{})
		}
		return candidate{t: t.In(p.loc), conf: 0.95}, true
	}
	return candidate{}, false
}

// =============================================================================
// PREPROCESSING
// =============================================================================

var (
	ordinalSuffix = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	leadingFiller = regexp.MustCompile(`^(?:it'?s\s+)?(?:due\s+)?(?:(?:by|on|before|until|for)\s+)?`)
	multiSpace    = regexp.MustCompile(`\s+`)
	vagueDate     = regexp.MustCompile(`^(?:soon|sometime|some time|later|eventually|whenever|at some point|someday|one day)$`)
)

func normalizeDate(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "a.m.", "am")
	s = strings.ReplaceAll(s, "p.m.", "pm")
	s = strings.TrimRight(s, ".!?")
	s = strings.ReplaceAll(s, ",", " ")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = leadingFiller.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// clock is an optional time of day attached to a date phrase.
type clock struct {
	hour, minute int
	set          bool
	inferred     bool
}

var (
	clockMeridiem = regexp.MustCompile(`(?:\bat\s+)?\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clockColon    = regexp.MustCompile(`(?:\bat\s+)?\b(\d{1,2}):(\d{2})\b`)
	clockBareAt   = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	clockWord     = regexp.MustCompile(`\b(?:in\s+the\s+|at\s+|this\s+)?(morning|noon|midday|afternoon|evening|night|midnight)\b`)
	tonightWord   = regexp.MustCompile(`\btonight\b`)
	danglingWords = regexp.MustCompile(`(?:^|\s)(?:at|on|by)$`)
)

var timeOfDay = map[string][2]int{
	"morning":   {9, 0},
	"noon":      {12, 0},
	"midday":    {12, 0},
	"afternoon": {14, 0},
	"evening":   {18, 0},
	"night":     {20, 0},
	"midnight":  {23, 59},
}

// inferMeridiem applies the bare-hour rule: 1-7 is afternoon, 8-11 morning,
// 12 noon. Anything else is taken as a 24-hour value.
func inferMeridiem(hour int) int {
	switch {
	case hour >= 1 && hour <= 7:
		return hour + 12
	default:
		return hour
	}
}

// extractClock pulls a time of day out of s and returns the remaining text.
func extractClock(s string) (string, clock) {
	var c clock

	if m := clockMeridiem.FindStringSubmatchIndex(s); m != nil {
		h, _ := strconv.Atoi(s[m[2]:m[3]])
		minute := 0
		if m[4] >= 0 {
			minute, _ = strconv.Atoi(s[m[4]:m[5]])
		}
		if h >= 1 && h <= 12 && minute < 60 {
			pm := s[m[6]:m[7]] == "pm"
			switch {
			case pm && h != 12:
				h += 12
			case !pm && h == 12:
				h = 0
			}
			c = clock{hour: h, minute: minute, set: true}
			s = s[:m[0]] + " " + s[m[1]:]
		}
	}
	if !c.set {
		if m := clockColon.FindStringSubmatchIndex(s); m != nil {
			h, _ := strconv.Atoi(s[m[2]:m[3]])
			minute, _ := strconv.Atoi(s[m[4]:m[5]])
			if h < 24 && minute < 60 {
				c = clock{hour: h, minute: minute, set: true}
				if h >= 1 && h <= 12 {
					c.hour = inferMeridiem(h)
					c.inferred = true
				}
				s = s[:m[0]] + " " + s[m[1]:]
			}
		}
	}
	if !c.set {
		if m := clockBareAt.FindStringSubmatchIndex(s); m != nil {
			h, _ := strconv.Atoi(s[m[2]:m[3]])
			if h >= 1 && h <= 12 {
				c = clock{hour: inferMeridiem(h), set: true, inferred: true}
				s = s[:m[0]] + " " + s[m[1]:]
			}
		}
	}
	if !c.set {
		if m := clockWord.FindStringSubmatchIndex(s); m != nil {
			hm := timeOfDay[s[m[2]:m[3]]]
			c = clock{hour: hm[0], minute: hm[1], set: true}
			s = s[:m[0]] + " " + s[m[1]:]
		}
	}

	if tonightWord.MatchString(s) {
		switch {
		case !c.set:
			c = clock{hour: 20, set: true}
		case c.inferred && c.hour < 12:
			c.hour += 12
		}
		s = tonightWord.ReplaceAllString(s, "today")
	}

	s = multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.TrimSpace(danglingWords.ReplaceAllString(s, ""))
	return s, c
}

// =============================================================================
// GRAMMAR
// =============================================================================

var (
	relativeIn    = regexp.MustCompile(`^in\s+(\S+)\s+(minute|min|hour|hr|day|week|month|year)s?$`)
	relativeFrom  = regexp.MustCompile(`^(\S+)\s+(minute|min|hour|hr|day|week|month|year)s?\s+from\s+(?:now|today)$`)
	weekdayPhrase = regexp.MustCompile(`^(?:(next|this|coming)\s+)?([a-z]+)$`)
	monthFirst    = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})(?:\s+(\d{4}))?$`)
	dayFirst      = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})\s+(?:of\s+)?([a-z]+)(?:\s+(\d{4}))?$`)
	numericDate   = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})(?:[/.-](\d{2}|\d{4}))?$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"tues":      time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"thur":      time.Thursday,
	"thurs":     time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

var months = map[string]time.Month{
	"january":   time.January,
	"jan":       time.January,
	"february":  time.February,
	"feb":       time.February,
	"march":     time.March,
	"mar":       time.March,
	"april":     time.April,
	"apr":       time.April,
	"may":       time.May,
	"june":      time.June,
	"jun":       time.June,
	"july":      time.July,
	"jul":       time.July,
	"august":    time.August,
	"aug":       time.August,
	"september": time.September,
	"sep":       time.September,
	"sept":      time.September,
	"october":   time.October,
	"oct":       time.October,
	"november":  time.November,
	"nov":       time.November,
	"december":  time.December,
	"dec":       time.December,
}

var countWords = map[string]int{
	"a":       1,
	"an":      1,
	"one":     1,
	"two":     2,
	"three":   3,
	"four":    4,
	"five":    5,
	"six":     6,
	"seven":   7,
	"eight":   8,
	"nine":    9,
	"ten":     10,
	"eleven":  11,
	"twelve":  12,
	"fifteen": 15,
	"twenty":  20,
	"thirty":  30,
}

func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n, true
	}
	n, ok := countWords[s]
	return n, ok
}

func (p *DateParser) parseNatural(s string, now time.Time) candidate {
	if s == "" {
		return failed(DateUnparseable)
	}
	if vagueDate.MatchString(s) {
		return failed(DateAmbiguous)
	}

	rest, clk := extractClock(s)
	c := p.parseDay(rest, now, clk)
	if c.failure == DateUnparseable && !c.final {
		c = p.parseFallback(s, now)
	}
	if c.failure == DateOK && clk.inferred {
		c.conf -= 0.2
	}
	return c
}

func (p *DateParser) parseDay(s string, now time.Time, clk clock) candidate {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	relConf := 0.8
	if clk.set && !clk.inferred {
		relConf = 0.9
	}

	switch s {
	case "":
		if !clk.set {
			return failed(DateUnparseable)
		}
		t := p.at(today, clk)
		if t.Before(now) {
			t = p.at(today.AddDate(0, 0, 1), clk)
		}
		return candidate{t: t, conf: relConf}
	case "today", "eod", "end of day", "end of the day":
		return candidate{t: p.at(today, clk), conf: relConf}
	case "tomorrow", "tmr", "tmrw":
		return candidate{t: p.at(today.AddDate(0, 0, 1), clk), conf: relConf}
	case "day after tomorrow", "the day after tomorrow":
		return candidate{t: p.at(today.AddDate(0, 0, 2), clk), conf: relConf}
	case "yesterday":
		return candidate{t: p.at(today.AddDate(0, 0, -1), clk), conf: relConf}
	case "next week":
		return candidate{t: p.at(today.AddDate(0, 0, 7), clk), conf: relConf}
	case "next month":
		return candidate{t: p.at(today.AddDate(0, 1, 0), clk), conf: relConf}
	case "next year":
		return candidate{t: p.at(today.AddDate(1, 0, 0), clk), conf: relConf}
	case "this weekend", "weekend", "the weekend":
		return candidate{t: p.at(today.AddDate(0, 0, daysUntil(now.Weekday(), time.Saturday, false)), clk), conf: relConf}
	case "end of week", "end of the week", "this week":
		return candidate{t: p.at(today.AddDate(0, 0, daysUntil(now.Weekday(), time.Friday, false)), clk), conf: relConf}
	case "end of month", "end of the month", "this month":
		last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, p.loc)
		return candidate{t: p.at(last, clk), conf: relConf}
	}

	if m := relativeIn.FindStringSubmatch(s); m != nil {
		return p.relative(m[1], m[2], now, today, clk, relConf)
	}
	if m := relativeFrom.FindStringSubmatch(s); m != nil {
		return p.relative(m[1], m[2], now, today, clk, relConf)
	}

	if m := weekdayPhrase.FindStringSubmatch(s); m != nil {
		if wd, ok := weekdays[m[2]]; ok {
			days := daysUntil(now.Weekday(), wd, m[1] == "this")
			if m[1] == "next" && days < 7 {
				days += 7
			}
			return candidate{t: p.at(today.AddDate(0, 0, days), clk), conf: relConf}
		}
	}

	if m := monthFirst.FindStringSubmatch(s); m != nil {
		if mon, ok := months[m[1]]; ok {
			return p.calendar(mon, m[2], m[3], now, clk)
		}
	}
	if m := dayFirst.FindStringSubmatch(s); m != nil {
		if mon, ok := months[m[2]]; ok {
			return p.calendar(mon, m[1], m[3], now, clk)
		}
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		return p.numeric(m[1], m[2], m[3], now, clk)
	}

	return failed(DateUnparseable)
}

func (p *DateParser) relative(countText, unit string, now, today time.Time, clk clock, conf float64) candidate {
	n, ok := parseCount(countText)
	if !ok {
		return failed(DateUnparseable)
	}
	// Counts past the horizon are rejected before any arithmetic can wrap.
	if n > p.horizonIn(unit) {
		return failed(DateTooFar)
	}
	switch unit {
	case "minute", "min":
		return candidate{t: now.Add(time.Duration(n) * time.Minute), conf: conf}
	case "hour", "hr":
		return candidate{t: now.Add(time.Duration(n) * time.Hour), conf: conf}
	case "day":
		return candidate{t: p.at(today.AddDate(0, 0, n), clk), conf: conf}
	case "week":
		return candidate{t: p.at(today.AddDate(0, 0, 7*n), clk), conf: conf}
	case "month":
		return candidate{t: p.at(today.AddDate(0, n, 0), clk), conf: conf}
	default:
		return candidate{t: p.at(today.AddDate(n, 0, 0), clk), conf: conf}
	}
}

// horizonIn returns a count of unit that is safely beyond maxYears.
func (p *DateParser) horizonIn(unit string) int {
	days := (p.maxYears + 1) * 366
	switch unit {
	case "minute", "min":
		return days * 24 * 60
	case "hour", "hr":
		return days * 24
	case "day":
		return days
	case "week":
		return days/7 + 1
	case "month":
		return (p.maxYears + 1) * 12
	default:
		return p.maxYears + 1
	}
}

// calendar builds a month-name date. A missing year means the next
// occurrence of that day.
func (p *DateParser) calendar(mon time.Month, dayText, yearText string, now time.Time, clk clock) candidate {
	day, _ := strconv.Atoi(dayText)
	conf := 0.9
	year := now.Year()
	if yearText != "" {
		year, _ = strconv.Atoi(yearText)
	} else {
		conf = 0.85
	}
	d, ok := p.validDay(year, mon, day)
	if !ok {
		return invalid()
	}
	t := p.at(d, clk)
	if yearText == "" && t.Before(now) {
		d, ok = p.validDay(year+1, mon, day)
		if !ok {
			return invalid()
		}
		t = p.at(d, clk)
	}
	return candidate{t: t, conf: conf}
}

// numeric reads m/d[/y]. When both parts could be a month and they differ,
// the input is ambiguous and both readings are offered.
func (p *DateParser) numeric(a, b, yearText string, now time.Time, clk clock) candidate {
	first, _ := strconv.Atoi(a)
	second, _ := strconv.Atoi(b)

	year := now.Year()
	if yearText != "" {
		year, _ = strconv.Atoi(yearText)
		if len(yearText) == 2 {
			year += 2000
		}
	}

	month, day := first, second
	if first > 12 && second <= 12 {
		month, day = second, first
	}
	if first <= 12 && second <= 12 && first != second {
		var opts []string
		for _, md := range [][2]int{{first, second}, {second, first}} {
			if d, ok := p.validDay(year, time.Month(md[0]), md[1]); ok {
				opts = append(opts, d.Format("January 2, 2006"))
			}
		}
		return candidate{failure: DateAmbiguous, options: opts}
	}
	if month < 1 || month > 12 {
		return invalid()
	}

	d, ok := p.validDay(year, time.Month(month), day)
	if !ok {
		return invalid()
	}
	t := p.at(d, clk)
	if yearText == "" && t.Before(now) {
		if d, ok = p.validDay(year+1, time.Month(month), day); !ok {
			return invalid()
		}
		t = p.at(d, clk)
	}
	return candidate{t: t, conf: 0.8}
}

// parseFallback asks the general grammar. A match covering under half of the
// phrase is treated as no match so stray words are never read as a date.
func (p *DateParser) parseFallback(s string, now time.Time) candidate {
	r, err := p.fallback.Parse(s, now)
	if err != nil || r == nil {
		return failed(DateUnparseable)
	}
	if len(strings.TrimSpace(r.Text))*2 < len(s) {
		return failed(DateUnparseable)
	}
	return candidate{t: r.Time.In(p.loc), conf: 0.5}
}

func (p *DateParser) validDay(year int, mon time.Month, day int) (time.Time, bool) {
	d := time.Date(year, mon, day, 0, 0, 0, 0, p.loc)
	if d.Month() != mon || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// at places a day at the clock time, or the default due time when unset.
func (p *DateParser) at(day time.Time, clk clock) time.Time {
	h, m := p.dueHour, p.dueMinute
	if clk.set {
		h, m = clk.hour, clk.minute
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, p.loc)
}

// daysUntil counts days from one weekday to the next occurrence of another.
// The same weekday counts as a week away unless includeToday is set.
func daysUntil(from, to time.Weekday, includeToday bool) int {
	d := (int(to) - int(from) + 7) % 7
	if d == 0 && !includeToday {
		d = 7
	}
	return d
}

// FormatDue renders a due date the way prompts show it.
func FormatDue(t time.Time) string {
	if t.Hour() == 23 && t.Minute() == 59 {
		return t.Format("Mon Jan 2, 2006")
	}
	return t.Format("Mon Jan 2, 2006 3:04 PM")
}
