// Package selection implements the rule-based template picker behind quests
// and contextual notifications.
//
// A Template carries declarative trigger and exclude conditions. Selection
// runs in stages: eligibility (all triggers hold, no exclude holds),
// scoring (base reward plus contextual tag bonuses), a shuffled top-K cut
// with a per-category cap, then placeholder interpolation against the
// user's context. Eligibility and scoring are deterministic for a given
// context; only the top-K shuffle is randomized.
package selection

import (
	"time"
)

// Domain discriminates the two template sets.
type Domain string

const (
	DomainQuest        Domain = "quest"
	DomainNotification Domain = "notification"
)

// Template is a static, data-driven quest or notification definition.
// Immutable at runtime; loaded once per process from the bundled sets.
type Template struct {
	ID       string `json:"id"`
	Domain   Domain `json:"domain"`
	Category string `json:"category"`

	// Tags feed the scoring bonuses (personalized, low_friction,
	// streak_rescue, variety).
	Tags []string `json:"tags,omitempty"`

	// Trigger conditions must all hold for the template to be eligible.
	// Exclude conditions each independently disqualify it.
	Trigger map[string]interface{} `json:"trigger,omitempty"`
	Exclude map[string]interface{} `json:"exclude,omitempty"`

	// Reward is the point value granted on completion and the base score.
	Reward int `json:"reward"`

	// Goal is the progress target for quest templates.
	Goal int `json:"goal,omitempty"`

	Title string `json:"title"`
	Body  string `json:"body"`

	// Route is the in-app destination opened from the message.
	Route string `json:"route"`
}

// HasTag reports whether the template carries tag.
func (t *Template) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// Context is the ephemeral per-user snapshot conditions and scoring
// evaluate against. Assembled fresh per evaluation, never persisted.
type Context struct {
	UserID string
	Now    time.Time

	DisplayName string
	ExamType    string

	// DaysUntilExam is nil when the user has not set an exam date.
	DaysUntilExam *int

	StreakDays      int
	QuestionsSolved int

	// WeakSubject and StrongSubject are empty when unresolvable.
	WeakSubject   string
	StrongSubject string

	// PlanProgress is nil when no plan is active.
	PlanProgress *float64

	// InactiveHours is the derived time since last activity.
	InactiveHours float64

	FeaturesUsed        []string
	PracticedCategories []string

	// ActiveQuestIDs are template IDs of the user's current quest
	// instances.
	ActiveQuestIDs []string

	// RecentNotificationIDs is the anti-repeat history, most recent first.
	RecentNotificationIDs []string
}

// featureUsed reports whether the user has touched feature key.
func (c *Context) featureUsed(key string) bool {
	for _, f := range c.FeaturesUsed {
		if f == key {
			return true
		}
	}
	return false
}

// recentlyNotified reports whether id is in the anti-repeat history.
func (c *Context) recentlyNotified(id string) bool {
	for _, n := range c.RecentNotificationIDs {
		if n == id {
			return true
		}
	}
	return false
}
