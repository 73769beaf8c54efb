// Package authz evaluates access-control rules for resolved operations.
// Rules are compiled ahead of time into predicates; the engine never
// parses expression text on the request path.
package authz

import (
	"fmt"
	"strings"
)

// Principal represents the already-authenticated actor for an
// operation. It is supplied by the transport layer and treated as an
// opaque input beyond role and claim lookups.
type Principal struct {
	ID     string
	Roles  []string
	Claims map[string]interface{}
}

// Anonymous reports whether the principal carries no identity.
func (p Principal) Anonymous() bool {
	return p.ID == ""
}

// HasRole checks if the principal holds the given role
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Predicate is a compiled access-control expression. The object is nil
// for collection-level and create checks, and the fetched record for
// item-level checks. Predicates must be deterministic and side-effect
// free.
type Predicate func(principal Principal, object map[string]interface{}) bool

// Rule pairs a compiled predicate with an optional denial message.
// ObjectBound marks rules whose outcome depends on the target object;
// collection-level gates defer those to the item-level check instead
// of evaluating them against a nil object.
type Rule struct {
	Predicate   Predicate
	Message     string
	ObjectBound bool
}

// Decision is the outcome of evaluating a rule.
type Decision struct {
	Allowed bool
	Message string
}

// Resolve applies override precedence: the operation-specific rule wins
// when declared; otherwise the resource's base rule applies; a nil
// result means default-allow.
func Resolve(override, base *Rule) *Rule {
	if override != nil {
		return override
	}
	return base
}

// Evaluate runs the rule against the principal and optional object.
// A nil rule allows the operation.
func Evaluate(rule *Rule, principal Principal, object map[string]interface{}) Decision {
	if rule == nil || rule.Predicate == nil {
		return Decision{Allowed: true}
	}
	if rule.Predicate(principal, object) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Message: rule.Message}
}

// EvaluateCollection runs the rule as a pre-fetch collection-level
// gate. Object-bound rules pass here and are re-evaluated item-level
// once the object is available.
func EvaluateCollection(rule *Rule, principal Principal) Decision {
	if rule != nil && rule.ObjectBound {
		return Decision{Allowed: true}
	}
	return Evaluate(rule, principal, nil)
}

// CompileRule compiles an access expression into a Rule carrying the
// given denial message.
func CompileRule(expr, message string) (*Rule, error) {
	pred, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Rule{
		Predicate:   pred,
		Message:     message,
		ObjectBound: strings.Contains(expr, "owner:"),
	}, nil
}

// Compile translates a declarative access expression into a Predicate.
//
// The expression grammar is a flat boolean combination of atoms:
//
//	authenticated        principal carries an identity
//	role:NAME            principal holds the role NAME
//	owner:FIELD          object FIELD equals the principal ID
//
// Atoms combine with "and" / "or"; "and" binds tighter. The owner atom
// is false when no object is present (collection-level checks).
//
// Example: "role:admin or owner:createdBy"
func Compile(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty access expression")
	}

	var orTerms []Predicate
	for _, orPart := range strings.Split(expr, " or ") {
		var andTerms []Predicate
		for _, atom := range strings.Split(orPart, " and ") {
			p, err := compileAtom(strings.TrimSpace(atom))
			if err != nil {
				return nil, err
			}
			andTerms = append(andTerms, p)
		}
		orTerms = append(orTerms, allOf(andTerms))
	}
	return anyOf(orTerms), nil
}

func compileAtom(atom string) (Predicate, error) {
	switch {
	case atom == "authenticated":
		return func(p Principal, _ map[string]interface{}) bool {
			return !p.Anonymous()
		}, nil

	case strings.HasPrefix(atom, "role:"):
		role := strings.TrimPrefix(atom, "role:")
		if role == "" {
			return nil, fmt.Errorf("role atom requires a role name")
		}
		return func(p Principal, _ map[string]interface{}) bool {
			return p.HasRole(role)
		}, nil

	case strings.HasPrefix(atom, "owner:"):
		field := strings.TrimPrefix(atom, "owner:")
		if field == "" {
			return nil, fmt.Errorf("owner atom requires a field name")
		}
		return func(p Principal, object map[string]interface{}) bool {
			if object == nil || p.Anonymous() {
				return false
			}
			owner, ok := object[field]
			if !ok {
				return false
			}
			return fmt.Sprint(owner) == p.ID
		}, nil

	default:
		return nil, fmt.Errorf("unknown access atom %q", atom)
	}
}

func allOf(preds []Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return func(p Principal, obj map[string]interface{}) bool {
		for _, pred := range preds {
			if !pred(p, obj) {
				return false
			}
		}
		return true
	}
}

func anyOf(preds []Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return func(p Principal, obj map[string]interface{}) bool {
		for _, pred := range preds {
			if pred(p, obj) {
				return true
			}
		}
		return false
	}
}
