package selection

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Engine selects templates for one domain.
type Engine struct {
	domain    Domain
	templates []Template
	scoring   ScoringConfig
	policy    PickPolicy
	logger    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Config holds configuration for an Engine.
type Config struct {
	Domain    Domain
	Templates []Template
	Scoring   *ScoringConfig
	Policy    *PickPolicy
	Logger    zerolog.Logger

	// Rand overrides the shuffle source. Tests seed this to make the
	// shuffled pick reproducible; production leaves it nil.
	Rand *rand.Rand
}

// NewEngine creates a selection engine over a template set. Templates from
// other domains are dropped at construction.
func NewEngine(cfg Config) *Engine {
	scoring := DefaultScoringConfig()
	if cfg.Scoring != nil {
		scoring = *cfg.Scoring
	}
	policy := DefaultPickPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec // shuffle, not crypto
	}

	var templates []Template
	for _, t := range cfg.Templates {
		if t.Domain == cfg.Domain {
			templates = append(templates, t)
		}
	}

	return &Engine{
		domain:    cfg.Domain,
		templates: templates,
		scoring:   scoring,
		policy:    policy,
		logger:    cfg.Logger,
		rng:       rng,
	}
}

// TemplateCount returns the number of loaded templates for the domain.
func (e *Engine) TemplateCount() int {
	return len(e.templates)
}

// Eligible returns the templates whose trigger conditions all hold and
// none of whose exclude conditions hold against c. For the notification
// domain, templates in the context's recent-notification history are
// excluded up front.
func (e *Engine) Eligible(c *Context) []Template {
	var eligible []Template
	for _, t := range e.templates {
		if e.domain == DomainNotification && c.recentlyNotified(t.ID) {
			continue
		}
		if anyConditionHolds(t.Exclude, c) {
			continue
		}
		if !conditionsHold(t.Trigger, c) {
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible
}

type scored struct {
	template Template
	score    int
}

// Select picks up to desired templates for the context, with placeholder
// interpolation applied to the results.
func (e *Engine) Select(c *Context, desired int) []Template {
	if desired <= 0 {
		return nil
	}

	eligible := e.Eligible(c)
	if len(eligible) == 0 {
		return nil
	}

	// Score and take the top-K. The sort is stable only over scores;
	// equal scores land in the shuffle together.
	ranked := make([]scored, len(eligible))
	for i := range eligible {
		ranked[i] = scored{template: eligible[i], score: e.scoring.Score(&eligible[i], c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := ranked
	if len(top) > e.policy.TopK {
		top = top[:e.policy.TopK]
	}

	// Uniform shuffle of the top-K, then a greedy diversity-capped pick.
	e.mu.Lock()
	e.rng.Shuffle(len(top), func(i, j int) { top[i], top[j] = top[j], top[i] })
	e.mu.Unlock()

	perCategory := make(map[string]int)
	var picked []Template
	for _, s := range top {
		if len(picked) >= desired {
			break
		}
		if perCategory[s.template.Category] >= e.policy.MaxPerCategory {
			continue
		}
		perCategory[s.template.Category]++
		picked = append(picked, s.template)
	}

	for i := range picked {
		picked[i] = Personalize(picked[i], c)
	}

	e.logger.Debug().
		Str("domain", string(e.domain)).
		Str("user_id", c.UserID).
		Int("eligible", len(eligible)).
		Int("picked", len(picked)).
		Msg("selection completed")

	return picked
}

// Placeholder fallbacks when the context cannot resolve a concrete value.
const (
	genericSubject = "your subjects"
	genericName    = "there"
)

// Personalize interpolates placeholder tokens in the template's text
// fields against resolved context values. Returns a copy; the source
// template set stays immutable.
func Personalize(t Template, c *Context) Template {
	replacer := strings.NewReplacer(
		"{weak_subject}", orDefault(c.WeakSubject, genericSubject),
		"{strong_subject}", orDefault(c.StrongSubject, genericSubject),
		"{name}", orDefault(c.DisplayName, genericName),
	)
	t.Title = replacer.Replace(t.Title)
	t.Body = replacer.Replace(t.Body)
	return t
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
