package risk

// Level is the categorical severity derived from weighted safety flags.
type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelExtreme Level = "extreme"
)

// Priority is the urgency classification attached to an incident. It is
// distinct from Level but derived from it whenever a threshold is crossed.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
	PriorityCritical  Priority = "critical"
)

// Snapshot captures the safety attributes of an incident at assessment time.
// It is supplied by the record-management service and never mutated here.
type Snapshot struct {
	ImmediateDanger            bool `json:"immediate_danger"`
	ThreatsMade                bool `json:"threats_made"`
	EscalationPattern          bool `json:"escalation_pattern"`
	VictimFearsForLife         bool `json:"victim_fears_for_life"`
	ChildrenAtRisk             bool `json:"children_at_risk"`
	PerpetratorHasWeapons      bool `json:"perpetrator_has_weapons"`
	PerpetratorViolenceHistory bool `json:"perpetrator_violence_history"`
	VictimNeedsShelter         bool `json:"victim_needs_shelter"`
}

// Result is the derived risk assessment. It is recomputed whenever the
// snapshot changes and embedded into the owning incident record by the caller.
type Result struct {
	Level    Level    `json:"risk_level"`
	Priority Priority `json:"priority"`
	Score    int      `json:"score"`
}

// Escalates reports whether the assessed level warrants an automatic
// emergency escalation.
func (r Result) Escalates() bool {
	return r.Level == LevelHigh || r.Level == LevelExtreme
}

// Flag weights. These exact values are the safety contract of the service
// and must not drift.
const (
	weightImmediateDanger = 5
	weightThreatsMade     = 3
	weightEscalation      = 3
	weightFearsForLife    = 4
	weightChildrenAtRisk  = 3
	weightWeapons         = 4
	weightViolenceHistory = 2
	weightNeedsShelter    = 3
)

// Score thresholds.
const (
	thresholdExtreme = 15
	thresholdHigh    = 10
	thresholdMedium  = 5
)

// Assess maps an incident safety snapshot to a risk level and priority.
// Pure and deterministic: no side effects, no I/O, safe for unlimited
// concurrent calls. When no threshold is crossed the caller-supplied default
// priority is passed through unchanged.
func Assess(snap Snapshot, defaultPriority Priority) Result {
	score := 0
	if snap.ImmediateDanger {
		score += weightImmediateDanger
	}
	if snap.ThreatsMade {
		score += weightThreatsMade
	}
	if snap.EscalationPattern {
		score += weightEscalation
	}
	if snap.VictimFearsForLife {
		score += weightFearsForLife
	}
	if snap.ChildrenAtRisk {
		score += weightChildrenAtRisk
	}
	if snap.PerpetratorHasWeapons {
		score += weightWeapons
	}
	if snap.PerpetratorViolenceHistory {
		score += weightViolenceHistory
	}
	if snap.VictimNeedsShelter {
		score += weightNeedsShelter
	}

	switch {
	case score >= thresholdExtreme:
		return Result{Level: LevelExtreme, Priority: PriorityCritical, Score: score}
	case score >= thresholdHigh:
		return Result{Level: LevelHigh, Priority: PriorityEmergency, Score: score}
	case score >= thresholdMedium:
		return Result{Level: LevelMedium, Priority: PriorityHigh, Score: score}
	default:
		if defaultPriority == "" {
			defaultPriority = PriorityMedium
		}
		return Result{Level: LevelLow, Priority: defaultPriority, Score: score}
	}
}
