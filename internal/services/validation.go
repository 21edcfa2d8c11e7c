package services

// NumericCeiling bounds a numeric question by the tier selected in a
// sibling question. Limits maps tier name to the maximum allowed value.
type NumericCeiling struct {
	QuestionID     string
	TierQuestionID string
	Limits         map[string]int
}

// RuleSet is the validation table consulted by the dependency engine.
// Adding a rule means adding a table entry, not branching code. Entries
// registered explicitly take precedence over ones derived from question
// metadata.
type RuleSet struct {
	ceilings map[string]NumericCeiling
}

func NewRuleSet() *RuleSet {
	return &RuleSet{ceilings: map[string]NumericCeiling{}}
}

// Register adds or replaces the ceiling entry for a question id.
func (rs *RuleSet) Register(c NumericCeiling) {
	rs.ceilings[c.QuestionID] = c
}

// Ceiling resolves the numeric-ceiling rule for a question: a registered
// entry if present, otherwise one derived from the question's own
// sku_limits/depends_on metadata.
func (rs *RuleSet) Ceiling(q *Question) (NumericCeiling, bool) {
	if rs != nil {
		if c, ok := rs.ceilings[q.ID]; ok {
			return c, true
		}
	}
	if len(q.Meta.SKULimits) == 0 {
		return NumericCeiling{}, false
	}
	return NumericCeiling{
		QuestionID:     q.ID,
		TierQuestionID: q.Meta.DependsOn,
		Limits:         q.Meta.SKULimits,
	}, true
}
