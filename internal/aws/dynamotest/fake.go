// Package dynamotest provides an in-memory DynamoDB stand-in for unit tests.
// It understands only the expression shapes the stores in this module issue:
// attribute_exists / attribute_not_exists / equality conditions, flat SET
// updates, and hash-key equality queries.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

type table struct {
	hash  string
	rng   string
	items map[string]Item
}

// Fake implements the DynamoDB subset used by the stores.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table

	// Errors forces the named operation ("PutItem", "Query", ...) to fail.
	Errors map[string]error
	// Calls counts invocations per operation.
	Calls map[string]int
	// PageSize, when > 0, paginates Scan and Query results.
	PageSize int
}

// New returns an empty fake with no tables.
func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		Errors: map[string]error{},
		Calls:  map[string]int{},
	}
}

// CreateTable registers a table. rangeKey may be empty.
func (f *Fake) CreateTable(name, hashKey, rangeKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{hash: hashKey, rng: rangeKey, items: map[string]Item{}}
}

// Seed writes an item without evaluating any condition.
func (f *Fake) Seed(tableName string, item Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	t.items[t.keyOf(item)] = clone(item)
}

// Items returns a copy of every item in the table, ordered by key.
func (f *Fake) Items(tableName string) []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	out := make([]Item, 0, len(t.items))
	for _, k := range t.sortedKeys() {
		out = append(out, clone(t.items[k]))
	}
	return out
}

func (f *Fake) mustTable(name string) *table {
	t, ok := f.tables[name]
	if !ok {
		panic(fmt.Sprintf("dynamotest: unknown table %q", name))
	}
	return t
}

func (f *Fake) enter(op string) error {
	f.Calls[op]++
	return f.Errors[op]
}

func (f *Fake) lookup(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: name}
	}
	return t, nil
}

// PutItem stores an item, honouring a condition expression.
func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.Item[t.hash] == nil || (t.rng != "" && in.Item[t.rng] == nil) {
		return nil, errors.New("missing key attribute in item")
	}
	k := t.keyOf(in.Item)
	existing := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t.items[k] = clone(in.Item)
	return &dyn.PutItemOutput{}, nil
}

// GetItem returns the item stored under Key, or an empty output.
func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[t.keyOf(in.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

// UpdateItem applies a flat SET expression after checking the condition.
func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.keyOf(in.Key)
	existing := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	var item Item
	if existing == nil {
		item = clone(in.Key)
	} else {
		item = clone(existing)
	}
	updated := Item{}
	if in.UpdateExpression != nil {
		if err := applySet(*in.UpdateExpression, item, updated, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	t.items[k] = item

	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = clone(item)
	case types.ReturnValueUpdatedNew:
		out.Attributes = updated
	case types.ReturnValueAllOld:
		out.Attributes = clone(existing)
	}
	return out, nil
}

// DeleteItem removes an item; ReturnValues ALL_OLD yields the prior item.
func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.keyOf(in.Key)
	existing, ok := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(t.items, k)
	out := &dyn.DeleteItemOutput{}
	if ok && in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = existing
	}
	return out, nil
}

// BatchGetItem returns every requested key that exists; missing keys are
// silently omitted, as in DynamoDB.
func (f *Fake) BatchGetItem(ctx context.Context, in *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("BatchGetItem"); err != nil {
		return nil, err
	}
	out := &dyn.BatchGetItemOutput{Responses: map[string][]Item{}}
	for name, ka := range in.RequestItems {
		n := name
		t, err := f.lookup(&n)
		if err != nil {
			return nil, err
		}
		if len(ka.Keys) > 100 {
			return nil, errors.New("ValidationException: too many items requested")
		}
		seen := map[string]bool{}
		for _, key := range ka.Keys {
			k := t.keyOf(key)
			if seen[k] {
				return nil, errors.New("ValidationException: provided list of item keys contains duplicates")
			}
			seen[k] = true
			if item, ok := t.items[k]; ok {
				out.Responses[name] = append(out.Responses[name], clone(item))
			}
		}
	}
	return out, nil
}

// Query supports "<hash> = :v" key conditions and returns items in range-key order.
func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}
	name, val, err := parseEquality(*in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if name != t.hash {
		return nil, fmt.Errorf("query on non-hash attribute %q", name)
	}
	var matched []Item
	for _, k := range t.sortedKeys() {
		if equalAttr(t.items[k][name], val) {
			matched = append(matched, t.items[k])
		}
	}
	page, last := f.paginate(t, matched, in.ExclusiveStartKey)
	return &dyn.QueryOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

// Scan returns every item of the table in key order.
func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	all := make([]Item, 0, len(t.items))
	for _, k := range t.sortedKeys() {
		all = append(all, t.items[k])
	}
	page, last := f.paginate(t, all, in.ExclusiveStartKey)
	return &dyn.ScanOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Fake) paginate(t *table, items []Item, start Item) ([]Item, Item) {
	if len(start) > 0 {
		sk := t.keyOf(start)
		for i, it := range items {
			if t.keyOf(it) == sk {
				items = items[i+1:]
				break
			}
		}
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, clone(it))
	}
	if f.PageSize <= 0 || len(out) <= f.PageSize {
		return out, nil
	}
	page := out[:f.PageSize]
	lastItem := page[len(page)-1]
	last := Item{t.hash: lastItem[t.hash]}
	if t.rng != "" {
		last[t.rng] = lastItem[t.rng]
	}
	return page, last
}

func (t *table) keyOf(item Item) string {
	k := attrString(item[t.hash])
	if t.rng != "" {
		k += "\x00" + attrString(item[t.rng])
	}
	return k
}

func (t *table) sortedKeys() []string {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func attrString(v types.AttributeValue) string {
	switch a := v.(type) {
	case *types.AttributeValueMemberS:
		return a.Value
	case *types.AttributeValueMemberN:
		return a.Value
	default:
		return ""
	}
}

func equalAttr(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func evalCondition(expr string, existing Item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if terms := strings.Split(expr, " AND "); len(terms) > 1 {
		for _, term := range terms {
			ok, err := evalCondition(term, existing, names, values)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	switch {
	case strings.HasPrefix(expr, "attribute_not_exists(") && strings.HasSuffix(expr, ")"):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(expr, "attribute_not_exists("), ")"), names)
		return existing == nil || existing[attr] == nil, nil
	case strings.HasPrefix(expr, "attribute_exists(") && strings.HasSuffix(expr, ")"):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(expr, "attribute_exists("), ")"), names)
		return existing != nil && existing[attr] != nil, nil
	default:
		name, val, err := parseEquality(expr, names, values)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, nil
		}
		return equalAttr(existing[name], val), nil
	}
}

func parseEquality(expr string, names map[string]string, values map[string]types.AttributeValue) (string, types.AttributeValue, error) {
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("dynamotest: unsupported expression %q", expr)
	}
	name := resolveName(strings.TrimSpace(parts[0]), names)
	placeholder := strings.TrimSpace(parts[1])
	val, ok := values[placeholder]
	if !ok {
		return "", nil, fmt.Errorf("dynamotest: missing value for %s", placeholder)
	}
	return name, val, nil
}

func applySet(expr string, item, updated Item, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("dynamotest: unsupported update %q", expr)
	}
	for _, assignment := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		name, val, err := parseEquality(assignment, names, values)
		if err != nil {
			return err
		}
		item[name] = val
		updated[name] = val
	}
	return nil
}

func clone(item Item) Item {
	if item == nil {
		return nil
	}
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
