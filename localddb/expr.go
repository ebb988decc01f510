package localddb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/constraints"
)

// Filter expression evaluation. Supports conjunctions of equality
// comparisons and begins_with calls, which is the language the shared-table
// query mapper emits. Anything else is rejected rather than misevaluated.

func evalFilter(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, clause := range splitConjunction(expr) {
		match, err := evalClause(clause, names, values, item)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	clause = strings.TrimSpace(clause)
	// The SDK expression builder renders a space between the function name
	// and its argument list.
	clause = strings.Replace(clause, "begins_with (", "begins_with(", 1)
	if rest, ok := strings.CutPrefix(clause, "begins_with("); ok {
		args, ok := strings.CutSuffix(rest, ")")
		if !ok {
			return false, fmt.Errorf("malformed begins_with clause %q", clause)
		}
		parts := strings.SplitN(args, ",", 2)
		if len(parts) != 2 {
			return false, fmt.Errorf("begins_with needs two arguments in %q", clause)
		}
		attr, err := resolveOperand(strings.TrimSpace(parts[0]), names, item)
		if err != nil {
			return false, err
		}
		want, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return false, err
		}
		attrS, ok := attr.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		wantS, ok := want.(*types.AttributeValueMemberS)
		if !ok {
			return false, fmt.Errorf("begins_with argument must be a string")
		}
		return strings.HasPrefix(attrS.Value, wantS.Value), nil
	}

	parts := strings.Fields(strings.ReplaceAll(clause, "=", " = "))
	if len(parts) != 3 || parts[1] != "=" {
		return false, fmt.Errorf("unsupported filter clause %q", clause)
	}
	attr, err := resolveOperand(parts[0], names, item)
	if err != nil {
		return false, err
	}
	want, err := resolveValue(parts[2], values)
	if err != nil {
		return false, err
	}
	return attributeEqual(attr, want), nil
}

func resolveOperand(operand string, names map[string]string, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	name := operand
	if strings.HasPrefix(operand, "#") {
		resolved, ok := names[operand]
		if !ok {
			return nil, fmt.Errorf("unresolved name placeholder %s", operand)
		}
		name = resolved
	}
	return item[name], nil
}

func resolveValue(operand string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	if !strings.HasPrefix(operand, ":") {
		return nil, fmt.Errorf("expected a value placeholder, got %q", operand)
	}
	av, ok := values[operand]
	if !ok {
		return nil, fmt.Errorf("unresolved value placeholder %s", operand)
	}
	return av, nil
}

func attributeEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && compareOrdered(av.Value, bv.Value) == 0
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		af, aerr := strconv.ParseFloat(av.Value, 64)
		bf, berr := strconv.ParseFloat(bv.Value, 64)
		if aerr != nil || berr != nil {
			return av.Value == bv.Value
		}
		return compareOrdered(af, bf) == 0
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && string(av.Value) == string(bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// splitConjunction splits on the AND keyword. Parenthesized function calls
// like begins_with(...) contain no AND, so token-level splitting suffices.
func splitConjunction(expr string) []string {
	var clauses []string
	var current []string
	for _, tok := range strings.Fields(expr) {
		if strings.EqualFold(tok, "and") {
			clauses = append(clauses, strings.Join(current, " "))
			current = nil
			continue
		}
		current = append(current, tok)
	}
	return append(clauses, strings.Join(current, " "))
}

// applyUpdateExpression mutates item in place, supporting SET and REMOVE
// over top-level attributes.
func applyUpdateExpression(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	for _, section := range splitUpdateSections(expr) {
		keyword, body, found := strings.Cut(section, " ")
		if !found {
			return fmt.Errorf("malformed update expression %q", expr)
		}
		switch strings.ToUpper(keyword) {
		case "SET":
			for _, assignment := range strings.Split(body, ",") {
				lhs, rhs, found := strings.Cut(assignment, "=")
				if !found {
					return fmt.Errorf("malformed SET assignment %q", assignment)
				}
				name, err := resolveName(strings.TrimSpace(lhs), names)
				if err != nil {
					return err
				}
				value, err := resolveValue(strings.TrimSpace(rhs), values)
				if err != nil {
					return err
				}
				item[name] = value
			}
		case "REMOVE":
			for _, operand := range strings.Split(body, ",") {
				name, err := resolveName(strings.TrimSpace(operand), names)
				if err != nil {
					return err
				}
				delete(item, name)
			}
		default:
			return fmt.Errorf("unsupported update clause %q", keyword)
		}
	}
	return nil
}

func resolveName(operand string, names map[string]string) (string, error) {
	if strings.HasPrefix(operand, "#") {
		resolved, ok := names[operand]
		if !ok {
			return "", fmt.Errorf("unresolved name placeholder %s", operand)
		}
		return resolved, nil
	}
	return operand, nil
}

// splitUpdateSections splits an update expression at its SET/REMOVE keywords.
func splitUpdateSections(expr string) []string {
	var sections []string
	var current []string
	for _, tok := range strings.Fields(expr) {
		upper := strings.ToUpper(tok)
		if (upper == "SET" || upper == "REMOVE") && len(current) > 0 {
			sections = append(sections, strings.Join(current, " "))
			current = nil
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, " "))
	}
	return sections
}
