package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

type CriteriaKind string

const (
	CriteriaKindRules CriteriaKind = "rules"
	CriteriaKindML    CriteriaKind = "ml"
)

type Mode string

const (
	ModeAnd Mode = "AND"
	ModeOr  Mode = "OR"
)

type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNeq      Operator = "neq"
	OperatorGt       Operator = "gt"
	OperatorGte      Operator = "gte"
	OperatorLt       Operator = "lt"
	OperatorLte      Operator = "lte"
	OperatorContains Operator = "contains"
	OperatorIn       Operator = "in"
	OperatorBetween  Operator = "between"
)

func (o Operator) Valid() bool {
	switch o {
	case OperatorEq, OperatorNeq, OperatorGt, OperatorGte, OperatorLt, OperatorLte,
		OperatorContains, OperatorIn, OperatorBetween:
		return true
	default:
		return false
	}
}

// Rule is a single field predicate. Value keeps its JSON form until the
// evaluator resolves it against the field type.
type Rule struct {
	Field    string          `json:"field"`
	Operator Operator        `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// NewRule builds a rule from a Go value. It panics when value cannot be
// encoded as JSON, which only happens for programmer errors such as channels
// or funcs.
func NewRule(field string, op Operator, value any) Rule {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("segment rule %s %s: %v", field, op, err))
	}
	return Rule{Field: field, Operator: op, Value: raw}
}

type MLType string

const (
	MLTypeRFM        MLType = "rfm"
	MLTypeBehavioral MLType = "behavioral"
	MLTypeEngagement MLType = "engagement"
)

var mlFeatures = map[MLType][]string{
	MLTypeRFM:        {"recencyDays", "purchaseCount", "totalPurchases"},
	MLTypeBehavioral: {"purchaseCount", "averagePurchaseValue", "openTicketCount", "totalQuantity"},
	MLTypeEngagement: {"accountAgeDays", "purchaseCount", "ticketCount", "invoiceCount", "recencyDays"},
}

func (t MLType) Valid() bool {
	_, ok := mlFeatures[t]
	return ok
}

// Features lists the feature vector columns of t in order.
func (t MLType) Features() []string {
	return append([]string(nil), mlFeatures[t]...)
}

type MLConfig struct {
	Type     MLType   `json:"type"`
	K        int      `json:"k"`
	Features []string `json:"features,omitempty"`
}

// Criteria is either a rule set or a clustering configuration, never both.
type Criteria struct {
	Kind  CriteriaKind `json:"kind"`
	Mode  Mode         `json:"mode,omitempty"`
	Rules []Rule       `json:"rules,omitempty"`
	ML    *MLConfig    `json:"ml,omitempty"`
}

func RuleCriteria(mode Mode, rules ...Rule) *Criteria {
	return &Criteria{Kind: CriteriaKindRules, Mode: mode, Rules: rules}
}

func MLCriteria(cfg MLConfig) *Criteria {
	return &Criteria{Kind: CriteriaKindML, ML: &cfg}
}

// Validate checks the structure of c for a segment of type t. Rule fields
// and values are checked by the rule evaluator. A zero K is replaced with
// defaultK before the range check.
func (c *Criteria) Validate(t SegmentType, defaultK, maxK int) error {
	switch t {
	case SegmentTypeManual:
		if c != nil {
			return ErrInvalidCriteria
		}
		return nil
	case SegmentTypeRuleBased:
		if c == nil || c.Kind != CriteriaKindRules || c.ML != nil {
			return ErrInvalidCriteria
		}
		if c.Mode == "" {
			c.Mode = ModeAnd
		}
		if c.Mode != ModeAnd && c.Mode != ModeOr {
			return ErrInvalidRuleMode
		}
		if len(c.Rules) == 0 {
			return ErrInvalidCriteria
		}
		for _, rule := range c.Rules {
			if !rule.Operator.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidRuleOperator, rule.Operator)
			}
		}
		return nil
	case SegmentTypeMLClustering:
		if c == nil || c.Kind != CriteriaKindML || c.ML == nil || len(c.Rules) > 0 {
			return ErrInvalidCriteria
		}
		return c.ML.validate(defaultK, maxK)
	default:
		return ErrInvalidSegmentType
	}
}

func (m *MLConfig) validate(defaultK, maxK int) error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMLConfig, m.Type)
	}
	if m.K == 0 {
		m.K = defaultK
	}
	if m.K < 2 || m.K > maxK {
		return fmt.Errorf("%w: k must be between 2 and %d", ErrInvalidMLConfig, maxK)
	}
	// Feature columns are fixed per type; a declared list must match them exactly.
	if len(m.Features) > 0 {
		want := m.Type.Features()
		if len(m.Features) != len(want) {
			return fmt.Errorf("%w: features for %s are %v", ErrInvalidMLConfig, m.Type, want)
		}
		for i := range want {
			if m.Features[i] != want[i] {
				return fmt.Errorf("%w: features for %s are %v", ErrInvalidMLConfig, m.Type, want)
			}
		}
	}
	m.Features = m.Type.Features()
	return nil
}

func (c *Criteria) Encode() (datatypes.JSON, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeCriteria parses stored criteria. Empty input decodes to nil.
func DecodeCriteria(raw datatypes.JSON) (*Criteria, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var c Criteria
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	return &c, nil
}
