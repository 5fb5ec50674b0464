package alarm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hklweb/alarmd/internal/conf"
	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// Transition is an edge detected by the evaluator: a rule whose
// fulfilled flag differs from the recorded state for the new value.
// Record is false when the transition updates edge state only and must
// not reach the ledger (value rule clearing without an unfulfilled
// text, in "when_text" mode).
type Transition struct {
	Rule      *entities.Rule
	Fulfilled bool
	Text      string
	Record    bool
}

// Evaluator turns an address value change into rule transitions. It is
// pure: it reads rule state but never mutates it, and touches no
// storage. The processor owns state updates and persistence.
type Evaluator struct {
	emitUnfulfilled string
}

// NewEvaluator creates an evaluator with the configured unfulfilled
// emission mode (conf.EmitWhenText or conf.EmitAlways).
func NewEvaluator(emitUnfulfilled string) *Evaluator {
	return &Evaluator{emitUnfulfilled: emitUnfulfilled}
}

// Evaluate checks every rule against the new value and returns the
// transitions whose fulfilled flag changed. Rules keep their input
// order. Bit rules read the integer prefix of the value ("3.5" counts
// as 3, for bus adapters that emit floats on register addresses); a
// value with no leading integer yields no bit-rule transitions. Value
// rules always compare as strings.
func (e *Evaluator) Evaluate(rules []entities.Rule, newValue string, states *StateStore) []Transition {
	var transitions []Transition
	numeric, numericErr := parseLeadingInt(newValue)
	for i := range rules {
		rule := &rules[i]
		var fulfilled bool
		switch rule.Type {
		case entities.RuleTypeValue:
			fulfilled = newValue == rule.Value
		case entities.RuleTypeBit:
			if numericErr != nil {
				continue
			}
			fulfilled = (numeric>>rule.BitPosition)&1 == 1
		default:
			continue
		}

		if fulfilled == states.Get(rule.ID) {
			continue
		}
		text, record := e.transitionText(rule, fulfilled)
		transitions = append(transitions, Transition{Rule: rule, Fulfilled: fulfilled, Text: text, Record: record})
	}
	return transitions
}

// parseLeadingInt reads the integer prefix of a value: an optional
// sign followed by digits, with trailing text ignored.
func parseLeadingInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitStart {
		return 0, fmt.Errorf("no leading integer in %q", s)
	}
	return strconv.ParseInt(s[:end], 10, 64)
}

// transitionText picks the message for a transition. A value rule with
// no unfulfilled text keeps the clearing transition off the ledger
// unless the emission mode is "always"; the edge state still flips so
// the rule can fire again.
func (e *Evaluator) transitionText(rule *entities.Rule, fulfilled bool) (string, bool) {
	if rule.Type == entities.RuleTypeBit {
		if fulfilled {
			return rule.TextOn, true
		}
		return rule.TextOff, true
	}
	if fulfilled {
		return rule.Text, true
	}
	if rule.TextUnfulfilled == "" && e.emitUnfulfilled != conf.EmitAlways {
		return "", false
	}
	return rule.TextUnfulfilled, true
}
