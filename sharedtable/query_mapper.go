package sharedtable

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
)

// Reserved placeholder names for the tenant/table scoping predicate appended
// to scans. Prefixed to stay clear of caller-chosen placeholders.
const (
	scopeHashName    = "#dynashard_hk"
	scopePrefixValue = ":dynashard_prefix"
)

// QueryMapper rewrites query and scan requests in place: the table name, the
// target index, equality key conditions (expression or legacy form), the
// placeholder maps, and, for scans, the tenant/table scoping predicate.
type QueryMapper struct {
	mapping  *TableMapping
	fields   fieldMapper
	provider mtcontext.Provider
	codec    prefix.Codec
}

// indexTarget identifies the table or secondary index a request runs against.
type indexTarget struct {
	// virtualIndex scopes field-mapping lookups; the virtual table name
	// denotes table scope.
	virtualIndex    string
	physicalIndex   string
	physicalHashKey string
}

// ApplyToQuery rewrites a query request. The caller passes a clone; maps are
// replaced, never mutated.
func (m *QueryMapper) ApplyToQuery(ctx context.Context, in *dynamodb.QueryInput) error {
	in.TableName = aws.String(m.mapping.physical.Name)
	target, err := m.resolveTarget(in.IndexName)
	if err != nil {
		return err
	}
	if in.IndexName != nil {
		in.IndexName = aws.String(target.physicalIndex)
	}

	if len(in.KeyConditions) > 0 {
		rewritten, err := m.rewriteLegacyKeyConditions(ctx, in.KeyConditions, target)
		if err != nil {
			return err
		}
		in.KeyConditions = rewritten
	}

	if in.KeyConditionExpression != nil {
		names := maps.Clone(in.ExpressionAttributeNames)
		values := maps.Clone(in.ExpressionAttributeValues)
		rewritten, err := m.rewriteKeyConditionExpression(ctx, *in.KeyConditionExpression, names, values, target)
		if err != nil {
			return err
		}
		in.KeyConditionExpression = aws.String(rewritten)
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}
	return nil
}

// ApplyToScan rewrites a scan request and appends the scoping predicate that
// restricts results to the current tenant and virtual table. The placeholder
// maps are initialized when absent since the appended filter needs them.
func (m *QueryMapper) ApplyToScan(ctx context.Context, in *dynamodb.ScanInput) error {
	in.TableName = aws.String(m.mapping.physical.Name)
	target, err := m.resolveTarget(in.IndexName)
	if err != nil {
		return err
	}
	if in.IndexName != nil {
		in.IndexName = aws.String(target.physicalIndex)
	}

	names := maps.Clone(in.ExpressionAttributeNames)
	if names == nil {
		names = make(map[string]string)
	}
	values := maps.Clone(in.ExpressionAttributeValues)
	if values == nil {
		values = make(map[string]types.AttributeValue)
	}

	filter := ""
	if in.FilterExpression != nil {
		filter, err = m.rewriteFilter(ctx, *in.FilterExpression, names, values, target)
		if err != nil {
			return err
		}
	}

	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return err
	}
	names[scopeHashName] = target.physicalHashKey
	values[scopePrefixValue] = &types.AttributeValueMemberS{
		Value: m.codec.Apply(tenant, m.mapping.virtual.Name, "").Qualified,
	}
	scope := fmt.Sprintf("begins_with(%s, %s)", scopeHashName, scopePrefixValue)
	if filter != "" {
		filter = filter + " AND " + scope
	} else {
		filter = scope
	}

	in.FilterExpression = aws.String(filter)
	in.ExpressionAttributeNames = names
	in.ExpressionAttributeValues = values
	return nil
}

func (m *QueryMapper) resolveTarget(indexName *string) (indexTarget, error) {
	if indexName == nil || *indexName == "" {
		return indexTarget{
			virtualIndex:    m.mapping.virtual.Name,
			physicalHashKey: m.mapping.physical.Key.HashKey,
		}, nil
	}
	if _, ok := m.mapping.virtual.Index(*indexName); !ok {
		return indexTarget{}, fmt.Errorf("%w: table %s has no index %q",
			ErrUnmappableIndex, m.mapping.virtual.Name, *indexName)
	}
	physicalName := m.mapping.physicalIndexNames[*indexName]
	physicalIdx, ok := m.mapping.physical.Index(physicalName)
	if !ok {
		return indexTarget{}, fmt.Errorf("%w: physical table %s has no index %q",
			ErrUnmappableIndex, m.mapping.physical.Name, physicalName)
	}
	return indexTarget{
		virtualIndex:    *indexName,
		physicalIndex:   physicalName,
		physicalHashKey: physicalIdx.Key.HashKey,
	}, nil
}

// rewriteKeyConditionExpression handles conjunctions of equality clauses.
// Anything else on a key condition is unsupported.
func (m *QueryMapper) rewriteKeyConditionExpression(
	ctx context.Context,
	expr string,
	names map[string]string,
	values map[string]types.AttributeValue,
	target indexTarget,
) (string, error) {
	if strings.ContainsAny(expr, "()<>") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPredicate, expr)
	}
	clauses := splitAnd(expr)
	for i, clause := range clauses {
		name, value, err := parseEquality(clause)
		if err != nil {
			return "", err
		}
		rewritten, err := m.rewriteEqualityClause(ctx, name, value, names, values, target, true)
		if err != nil {
			return "", err
		}
		clauses[i] = rewritten
	}
	return strings.Join(clauses, " AND "), nil
}

// rewriteFilter rewrites equality clauses over mapped fields inside a scan
// filter. Filters that are not plain conjunctions of comparisons pass through
// unchanged, as do clauses over unmapped fields.
func (m *QueryMapper) rewriteFilter(
	ctx context.Context,
	expr string,
	names map[string]string,
	values map[string]types.AttributeValue,
	target indexTarget,
) (string, error) {
	if strings.ContainsAny(expr, "()") {
		return expr, nil
	}
	clauses := splitAnd(expr)
	for i, clause := range clauses {
		name, value, err := parseEquality(clause)
		if err != nil {
			continue
		}
		rewritten, err := m.rewriteEqualityClause(ctx, name, value, names, values, target, false)
		if err != nil {
			return "", err
		}
		clauses[i] = rewritten
	}
	return strings.Join(clauses, " AND "), nil
}

// rewriteEqualityClause maps one `name = :value` clause. Clauses over
// unmapped fields are returned untouched. strict requires the right-hand side
// of a mapped clause to be a resolvable value placeholder.
func (m *QueryMapper) rewriteEqualityClause(
	ctx context.Context,
	name, value string,
	names map[string]string,
	values map[string]types.AttributeValue,
	target indexTarget,
	strict bool,
) (string, error) {
	actual := name
	alias := ""
	if strings.HasPrefix(name, "#") {
		alias = name
		resolved, ok := names[name]
		if !ok {
			return "", fmt.Errorf("%w: unresolved name placeholder %s", ErrUnsupportedPredicate, name)
		}
		actual = resolved
	}
	fm, ok := m.mapping.mappingFor(actual, target.virtualIndex)
	if !ok {
		return name + " = " + value, nil
	}
	if !strings.HasPrefix(value, ":") {
		if strict {
			return "", fmt.Errorf("%w: key condition on %s uses a literal", ErrUnsupportedPredicate, actual)
		}
		return name + " = " + value, nil
	}
	av, ok := values[value]
	if !ok {
		return "", fmt.Errorf("%w: unresolved value placeholder %s", ErrUnsupportedPredicate, value)
	}
	mapped, err := m.fields.apply(ctx, fm, av)
	if err != nil {
		return "", err
	}
	values[value] = mapped
	if alias != "" {
		names[alias] = fm.Target.Name
		return alias + " = " + value, nil
	}
	return fm.Target.Name + " = " + value, nil
}

// rewriteLegacyKeyConditions maps the pre-expression KeyConditions form.
func (m *QueryMapper) rewriteLegacyKeyConditions(
	ctx context.Context,
	conds map[string]types.Condition,
	target indexTarget,
) (map[string]types.Condition, error) {
	out := make(map[string]types.Condition, len(conds))
	for name, cond := range conds {
		fm, ok := m.mapping.mappingFor(name, target.virtualIndex)
		if !ok {
			out[name] = cond
			continue
		}
		if cond.ComparisonOperator != types.ComparisonOperatorEq || len(cond.AttributeValueList) != 1 {
			return nil, fmt.Errorf("%w: %s on key %s", ErrUnsupportedPredicate, cond.ComparisonOperator, name)
		}
		mapped, err := m.fields.apply(ctx, fm, cond.AttributeValueList[0])
		if err != nil {
			return nil, err
		}
		out[fm.Target.Name] = types.Condition{
			ComparisonOperator: types.ComparisonOperatorEq,
			AttributeValueList: []types.AttributeValue{mapped},
		}
	}
	return out, nil
}

// splitAnd splits a conjunction on the AND keyword.
func splitAnd(expr string) []string {
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

// parseEquality decomposes a `name = value` clause.
func parseEquality(clause string) (name, value string, err error) {
	parts := strings.Fields(strings.ReplaceAll(clause, "=", " = "))
	if len(parts) != 3 || parts[1] != "=" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedPredicate, clause)
	}
	return parts[0], parts[2], nil
}
