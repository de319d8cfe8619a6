package watcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultInterval = 60 * time.Second

// Schedule yields the next poll time after a cycle completes.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// Every is a fixed sleep between cycles.
type Every time.Duration

func (e Every) Next(after time.Time) time.Time { return after.Add(time.Duration(e)) }
func (e Every) String() string                 { return "every " + time.Duration(e).String() }

type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

func (c cronSchedule) Next(after time.Time) time.Time { return c.sched.Next(after) }
func (c cronSchedule) String() string                 { return "cron " + c.expr }

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule accepts:
//   - Go duration: "60s", "2m30s"
//   - HH:MM interval: "00:05" (five minutes)
//   - cron: "*/2 * * * *", "@every 90s", "@hourly"
//
// "cron:" forces cron parsing; "interval:" and "every:" force an interval.
// An empty string means DefaultInterval.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Every(DefaultInterval), nil
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}
	sched, err := parseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q (use a duration like '60s', HH:MM like '00:05', or cron like '*/2 * * * *')", raw)
	}
	return sched, nil
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return cronSchedule{expr: expr, sched: sched}, nil
}

func parseInterval(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return nil, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", v, err)
		}
	}
	if d <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	return Every(d), nil
}
