package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/apipatb/earning-sub011/internal/segment/domain"
	pkgdb "github.com/apipatb/earning-sub011/pkg/db"
	"gorm.io/gorm"
)

type condition struct {
	query string
	args  []any
}

// Validate checks that every rule names a known field, a known operator and
// a value of the right shape.
func Validate(rules []domain.Rule) error {
	_, err := compile(rules, time.Now().UTC())
	return err
}

// Scope turns rules combined with mode into a gorm scope over the customers
// table. Relative dates resolve against now.
func Scope(mode domain.Mode, rules []domain.Rule, now time.Time) (func(*gorm.DB) *gorm.DB, error) {
	if mode == "" {
		mode = domain.ModeAnd
	}
	if mode != domain.ModeAnd && mode != domain.ModeOr {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRuleMode, mode)
	}
	if len(rules) == 0 {
		return nil, domain.ErrInvalidCriteria
	}

	conds, err := compile(rules, now)
	if err != nil {
		return nil, err
	}

	return func(tx *gorm.DB) *gorm.DB {
		group := tx.Session(&gorm.Session{NewDB: true})
		for i, c := range conds {
			if i > 0 && mode == domain.ModeOr {
				group = group.Or(c.query, c.args...)
				continue
			}
			group = group.Where(c.query, c.args...)
		}
		return tx.Where(group)
	}, nil
}

func compile(rules []domain.Rule, now time.Time) ([]condition, error) {
	conds := make([]condition, 0, len(rules))
	for _, rule := range rules {
		c, err := compileRule(rule, now)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func compileRule(rule domain.Rule, now time.Time) (condition, error) {
	f, err := lookupField(rule.Field)
	if err != nil {
		return condition{}, err
	}
	if isNull(rule.Value) {
		return condition{}, fmt.Errorf("%w: %s has no value", domain.ErrInvalidRuleValue, rule.Field)
	}

	switch rule.Operator {
	case domain.OperatorEq, domain.OperatorNeq, domain.OperatorGt, domain.OperatorGte, domain.OperatorLt, domain.OperatorLte:
		v, err := f.scalar(rule.Value, now)
		if err != nil {
			return condition{}, err
		}
		return condition{query: f.column + " " + comparison[rule.Operator] + " ?", args: []any{v}}, nil

	case domain.OperatorContains:
		if f.kind != kindString {
			return condition{}, fmt.Errorf("%w: contains needs a text field, got %s", domain.ErrInvalidRuleOperator, rule.Field)
		}
		v, err := f.scalar(rule.Value, now)
		if err != nil {
			return condition{}, err
		}
		return condition{
			query: "LOWER(" + f.column + ") LIKE ? ESCAPE '" + pkgdb.LikeEscape + "'",
			args:  []any{pkgdb.ContainsPattern(strings.ToLower(v.(string)))},
		}, nil

	case domain.OperatorIn:
		values, err := f.list(rule.Value, now)
		if err != nil {
			return condition{}, err
		}
		if len(values) == 0 {
			return condition{}, fmt.Errorf("%w: in needs at least one value", domain.ErrInvalidRuleValue)
		}
		return condition{query: f.column + " IN ?", args: []any{values}}, nil

	case domain.OperatorBetween:
		values, err := f.list(rule.Value, now)
		if err != nil {
			return condition{}, err
		}
		if len(values) != 2 {
			return condition{}, fmt.Errorf("%w: between needs exactly two values", domain.ErrInvalidRuleValue)
		}
		return condition{query: f.column + " BETWEEN ? AND ?", args: values}, nil
	}

	return condition{}, fmt.Errorf("%w: %q", domain.ErrInvalidRuleOperator, rule.Operator)
}

var comparison = map[domain.Operator]string{
	domain.OperatorEq:  "=",
	domain.OperatorNeq: "<>",
	domain.OperatorGt:  ">",
	domain.OperatorGte: ">=",
	domain.OperatorLt:  "<",
	domain.OperatorLte: "<=",
}
