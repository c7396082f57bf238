package selection

import "strings"

// predicate evaluates one condition key against the context. value is the
// raw JSON value from the template definition.
type predicate func(c *Context, value interface{}) bool

// conditionTable maps the condition vocabulary to predicates. A key absent
// from the table, or a context field the condition needs but the context
// lacks, fails closed: the condition does not hold.
var conditionTable = map[string]predicate{
	// time_of_day: "morning" | "afternoon" | "evening" | "night".
	"time_of_day": func(c *Context, v interface{}) bool {
		bucket, ok := v.(string)
		if !ok {
			return false
		}
		return timeOfDayBucket(c.Now.Hour()) == bucket
	},

	// day_of_week: set of "mon".."sun".
	"day_of_week": func(c *Context, v interface{}) bool {
		days, ok := asStrings(v)
		if !ok {
			return false
		}
		today := strings.ToLower(c.Now.Weekday().String()[:3])
		for _, d := range days {
			if strings.ToLower(d) == today {
				return true
			}
		}
		return false
	},

	"min_inactive_hours": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && c.InactiveHours >= f
	},
	"max_inactive_hours": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && c.InactiveHours <= f
	},

	// has_weak_subject / has_strong_subject take a bool so a template can
	// trigger on the absence of the field as well as its presence.
	"has_weak_subject": func(c *Context, v interface{}) bool {
		want, ok := v.(bool)
		return ok && (c.WeakSubject != "") == want
	},
	"has_strong_subject": func(c *Context, v interface{}) bool {
		want, ok := v.(bool)
		return ok && (c.StrongSubject != "") == want
	},

	// Plan progress bounds fail closed when no plan is active.
	"min_plan_progress": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && c.PlanProgress != nil && *c.PlanProgress >= f
	},
	"max_plan_progress": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && c.PlanProgress != nil && *c.PlanProgress <= f
	},

	"feature_used": func(c *Context, v interface{}) bool {
		key, ok := v.(string)
		return ok && c.featureUsed(key)
	},
	"feature_not_used": func(c *Context, v interface{}) bool {
		key, ok := v.(string)
		return ok && !c.featureUsed(key)
	},

	// exam_type: set membership.
	"exam_type": func(c *Context, v interface{}) bool {
		exams, ok := asStrings(v)
		if !ok {
			return false
		}
		for _, e := range exams {
			if c.ExamType == e {
				return true
			}
		}
		return false
	},

	// Fails closed when the user has not set an exam date.
	"max_days_until_exam": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && c.DaysUntilExam != nil && float64(*c.DaysUntilExam) <= f
	},

	"min_streak": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && float64(c.StreakDays) >= f
	},
	"max_streak": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && float64(c.StreakDays) <= f
	},

	"min_questions_solved": func(c *Context, v interface{}) bool {
		f, ok := asFloat(v)
		return ok && float64(c.QuestionsSolved) >= f
	},
}

// holds evaluates one condition. Unknown keys fail closed.
func holds(key string, value interface{}, c *Context) bool {
	pred, ok := conditionTable[key]
	if !ok {
		return false
	}
	return pred(c, value)
}

// conditionsHold evaluates a condition map as a conjunction.
func conditionsHold(conditions map[string]interface{}, c *Context) bool {
	for key, value := range conditions {
		if !holds(key, value, c) {
			return false
		}
	}
	return true
}

// anyConditionHolds reports whether at least one condition in the map
// holds. Used for exclude maps: a single matching exclusion disqualifies.
func anyConditionHolds(conditions map[string]interface{}, c *Context) bool {
	for key, value := range conditions {
		if holds(key, value, c) {
			return true
		}
	}
	return false
}

// timeOfDayBucket maps an hour to its bucket name.
func timeOfDayBucket(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 23:
		return "evening"
	default:
		return "night"
	}
}

// asFloat coerces a JSON number.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// asStrings coerces a JSON string array.
func asStrings(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
