package selection

// Template tags recognized by the scorer.
const (
	TagPersonalized = "personalized"
	TagLowFriction  = "low_friction"
	TagStreakRescue = "streak_rescue"
	TagVariety      = "variety"
)

// ScoringConfig holds the bonus constants. The constants are tuning
// knobs, not invariants; only the mechanism (base reward plus contextual
// bonuses) is fixed.
type ScoringConfig struct {
	// PersonalizationBonus applies to personalized templates when a weak
	// or strong subject is resolvable for the user.
	PersonalizationBonus int

	// LowFrictionBonus is a small constant bump for low-effort templates.
	LowFrictionBonus int

	// StreakRescueBonus applies to streak_rescue templates when the
	// user's streak has collapsed below StreakRescueThreshold.
	StreakRescueBonus     int
	StreakRescueThreshold int

	// VarietyBonus applies to variety templates when the user's recent
	// practice spans fewer than VarietyThreshold categories.
	VarietyBonus     int
	VarietyThreshold int
}

// DefaultScoringConfig returns the default bonus constants.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		PersonalizationBonus:  25,
		LowFrictionBonus:      5,
		StreakRescueBonus:     15,
		StreakRescueThreshold: 3,
		VarietyBonus:          10,
		VarietyThreshold:      3,
	}
}

// Score computes the rank value for an eligible template against a
// context. Deterministic for a given (template, context) pair; ties are
// broken by the shuffle stage, never by definition order.
func (cfg ScoringConfig) Score(t *Template, c *Context) int {
	score := t.Reward

	if t.HasTag(TagPersonalized) && (c.WeakSubject != "" || c.StrongSubject != "") {
		score += cfg.PersonalizationBonus
	}
	if t.HasTag(TagLowFriction) {
		score += cfg.LowFrictionBonus
	}
	if t.HasTag(TagStreakRescue) && c.StreakDays < cfg.StreakRescueThreshold {
		score += cfg.StreakRescueBonus
	}
	if t.HasTag(TagVariety) && len(c.PracticedCategories) < cfg.VarietyThreshold {
		score += cfg.VarietyBonus
	}

	return score
}

// PickPolicy controls the shuffle-and-diversify stage.
type PickPolicy struct {
	// TopK is how many of the highest-scoring eligible templates enter
	// the shuffle.
	TopK int

	// MaxPerCategory caps how many picks may share a category, bounding
	// category monoculture in a single selection.
	MaxPerCategory int
}

// DefaultPickPolicy returns the default top-K/diversity policy.
func DefaultPickPolicy() PickPolicy {
	return PickPolicy{TopK: 10, MaxPerCategory: 2}
}
