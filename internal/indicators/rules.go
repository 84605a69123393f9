package indicators

// CatalogVersion identifies the built-in rule set.
const CatalogVersion = "1.3.0"

// Pattern type names of the built-in catalog.
const (
	SelfSabotage     = "self_sabotage"
	Catastrophizing  = "catastrophizing"
	PeoplePleasing   = "people_pleasing"
	Perfectionism    = "perfectionism"
	Avoidance        = "avoidance"
	AllOrNothing     = "all_or_nothing"
	ImposterFeelings = "imposter_feelings"
)

// DefaultConfig returns the built-in catalog definition.
func DefaultConfig() *Config {
	return &Config{
		Version:      CatalogVersion,
		PatternTypes: DefaultPatternTypes(),
		Rules:        DefaultRules(),
	}
}

// DefaultPatternTypes returns the built-in pattern types.
func DefaultPatternTypes() []PatternType {
	return []PatternType{
		{
			Name:             SelfSabotage,
			Kind:             KindBehavioral,
			Description:      "A tendency to undermine their own progress or happiness",
			PotentialRoot:    "An underlying belief of not being worthy of good outcomes",
			ReflectionPrompt: "What might change if you allowed yourself to keep the good things that come your way?",
		},
		{
			Name:             Catastrophizing,
			Kind:             KindCognitive,
			Description:      "A habit of jumping to worst-case outcomes",
			PotentialRoot:    "Heightened sensitivity to uncertainty and a need to brace for the worst",
			ReflectionPrompt: "What is the most likely outcome here, rather than the worst one?",
		},
		{
			Name:             PeoplePleasing,
			Kind:             KindBehavioral,
			Description:      "Putting the approval of others ahead of their own needs",
			PotentialRoot:    "A learned association between being liked and being safe",
			ReflectionPrompt: "Whose needs did you set aside most recently, and what did that cost you?",
		},
		{
			Name:             Perfectionism,
			Kind:             KindCognitive,
			Description:      "Holding standards so high that progress can feel like failure",
			PotentialRoot:    "Self-worth tied closely to flawless performance",
			ReflectionPrompt: "What would good enough look like in this situation?",
		},
		{
			Name:             Avoidance,
			Kind:             KindBehavioral,
			Description:      "Steering away from situations that feel uncomfortable",
			PotentialRoot:    "Short-term relief from anxiety reinforcing the urge to step back",
			ReflectionPrompt: "What are you protecting yourself from when you step away?",
		},
		{
			Name:             AllOrNothing,
			Kind:             KindCognitive,
			Description:      "Seeing situations in black-and-white terms",
			PotentialRoot:    "Discomfort with ambiguity and partial outcomes",
			ReflectionPrompt: "Where is the middle ground in this situation?",
		},
		{
			Name:             ImposterFeelings,
			Kind:             KindEmotional,
			Description:      "Doubting their own competence despite evidence of ability",
			PotentialRoot:    "Attributing success to circumstance rather than skill",
			ReflectionPrompt: "What evidence of your ability might you be discounting?",
		},
	}
}

// DefaultRules returns the built-in indicator rules.
//
// Patterns run against lowercased text. Apostrophes accept both the ASCII and
// the typographic form.
func DefaultRules() []Rule {
	return []Rule{
		// Self-sabotage
		{
			ID:          "ss-undeserving",
			Pattern:     `\bi (?:don['’]?t|do not) deserve\b`,
			PatternType: SelfSabotage,
			Label:       "feeling undeserving",
			Weight:      2.0,
		},
		{
			ID:          "ss-always-ruin",
			Pattern:     `\bi (?:always|constantly) (?:mess|screw|ruin|wreck) (?:things|it|everything)\b`,
			PatternType: SelfSabotage,
			Label:       "expecting to ruin things",
			Weight:      2.5,
		},
		{
			ID:          "ss-quit-early",
			Pattern:     `\b(?:give|gave) up (?:right |just )?before\b`,
			PatternType: SelfSabotage,
			Label:       "quitting on the verge of success",
			Weight:      1.5,
		},
		{
			ID:          "ss-ruin-good",
			Pattern:     `\bi (?:ruin|sabotage|wreck) (?:every|any)thing good\b`,
			PatternType: SelfSabotage,
			Label:       "spoiling good moments",
			Weight:      2.5,
		},

		// Catastrophizing
		{
			ID:          "cat-worst-case",
			Pattern:     `\b(?:worst[- ]case|the worst (?:will|is going to) happen)\b`,
			PatternType: Catastrophizing,
			Label:       "worst-case expectation",
			Weight:      1.5,
		},
		{
			ID:          "cat-disaster",
			Pattern:     `\b(?:disaster|catastroph\w*|ruined forever)\b`,
			PatternType: Catastrophizing,
			Label:       "disaster framing",
			Weight:      1.0,
		},
		{
			ID:          "cat-never-recover",
			Pattern:     `\b(?:never|won['’]?t ever) (?:recover|get over|be okay|be ok)\b`,
			PatternType: Catastrophizing,
			Label:       "permanence of harm",
			Weight:      2.0,
		},
		{
			ID:          "cat-all-wrong",
			Pattern:     `\beverything (?:will|is going to) go wrong\b`,
			PatternType: Catastrophizing,
			Label:       "anticipated collapse",
			Weight:      2.0,
		},

		// People pleasing
		{
			ID:          "pp-cant-refuse",
			Pattern:     `\bi (?:can['’]?t|cannot|never) say no\b`,
			PatternType: PeoplePleasing,
			Label:       "difficulty refusing",
			Weight:      2.0,
		},
		{
			ID:          "pp-let-down",
			Pattern:     `\b(?:don['’]?t|do not) want to (?:let (?:anyone|them|people|everyone) down|disappoint)\b`,
			PatternType: PeoplePleasing,
			Label:       "fear of disappointing others",
			Weight:      1.5,
		},
		{
			ID:          "pp-everyone-happy",
			Pattern:     `\b(?:keep|make) everyone happy\b`,
			PatternType: PeoplePleasing,
			Label:       "responsibility for moods of others",
			Weight:      1.5,
		},
		{
			ID:          "pp-what-think",
			Pattern:     `\bwhat (?:will|would) (?:they|people|others) think\b`,
			PatternType: PeoplePleasing,
			Label:       "seeking validation",
			Weight:      1.0,
		},

		// Perfectionism
		{
			ID:          "pf-must-be-perfect",
			Pattern:     `\b(?:has to|have to|needs to|need to|must) be perfect\b`,
			PatternType: Perfectionism,
			Label:       "demand for flawlessness",
			Weight:      2.0,
		},
		{
			ID:          "pf-not-enough",
			Pattern:     `\b(?:never|not) good enough\b`,
			PatternType: Perfectionism,
			Label:       "chronic inadequacy",
			Weight:      1.5,
		},
		{
			ID:          "pf-one-mistake",
			Pattern:     `\b(?:one|a single|any) mistake\b`,
			PatternType: Perfectionism,
			Label:       "mistake intolerance",
			Weight:      1.0,
		},
		{
			ID:          "pf-redo",
			Pattern:     `\b(?:redo|rewrite|start over) (?:it|everything) (?:again|until)\b`,
			PatternType: Perfectionism,
			Label:       "endless reworking",
			Weight:      1.0,
		},

		// Avoidance
		{
			ID:          "av-avoid",
			Pattern:     `\bi (?:keep )?avoid(?:ing)?\b`,
			PatternType: Avoidance,
			Label:       "active avoidance",
			Weight:      1.5,
		},
		{
			ID:          "av-put-off",
			Pattern:     `\b(?:keep|kept) putting (?:it|this|things) off\b`,
			PatternType: Avoidance,
			Label:       "deferral",
			Weight:      1.5,
		},
		{
			ID:          "av-cant-face",
			Pattern:     `\b(?:can['’]?t|cannot) (?:face|deal with)\b`,
			PatternType: Avoidance,
			Label:       "overwhelm at confrontation",
			Weight:      1.5,
		},
		{
			ID:          "av-hide",
			Pattern:     `\b(?:hide|hiding) from\b`,
			PatternType: Avoidance,
			Label:       "withdrawal",
			Weight:      1.0,
		},

		// All-or-nothing
		{
			ID:          "aon-absolutes",
			Pattern:     `\b(?:always|never)\b`,
			PatternType: AllOrNothing,
			Label:       "absolute language",
			Weight:      1.0,
		},
		{
			ID:          "aon-total-failure",
			Pattern:     `\b(?:complete|total|utter) failure\b`,
			PatternType: AllOrNothing,
			Label:       "total-failure framing",
			Weight:      2.0,
		},
		{
			ID:          "aon-ruined",
			Pattern:     `\b(?:everything|it) is ruined\b`,
			PatternType: AllOrNothing,
			Label:       "all-is-lost thinking",
			Weight:      1.5,
		},
		{
			ID:          "aon-either-or",
			Pattern:     `\beither (?:perfect|great) or\b`,
			PatternType: AllOrNothing,
			Label:       "binary standards",
			Weight:      1.5,
		},

		// Imposter feelings
		{
			ID:          "imp-fraud",
			Pattern:     `\b(?:a fraud|an imposter|an impostor|a fake)\b`,
			PatternType: ImposterFeelings,
			Label:       "fraud feelings",
			Weight:      2.0,
		},
		{
			ID:          "imp-luck",
			Pattern:     `\b(?:just|only) (?:got )?lucky\b`,
			PatternType: ImposterFeelings,
			Label:       "success credited to luck",
			Weight:      1.5,
		},
		{
			ID:          "imp-found-out",
			Pattern:     `\b(?:find|found) out (?:that )?i\b`,
			PatternType: ImposterFeelings,
			Label:       "fear of exposure",
			Weight:      1.5,
		},
		{
			ID:          "imp-dont-belong",
			Pattern:     `\bi (?:don['’]?t|do not) belong\b`,
			PatternType: ImposterFeelings,
			Label:       "not belonging",
			Weight:      1.5,
		},
	}
}
