package insightstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fakeClauseKeyword = regexp.MustCompile(`\b(SET|ADD|REMOVE|DELETE)\s+`)
	fakeSetClause     = regexp.MustCompile(`(#\w+)\s*=\s*(?:if_not_exists\s*\(\s*#\w+\s*,\s*(:\w+)\s*\)|(:\w+))`)
	fakeAddClause     = regexp.MustCompile(`(#\w+)\s+(:\w+)`)
)

// fakeDynamo is an in-memory DynamoDBAPI that understands the update and key
// condition expressions the store generates. Queries return pageSize items
// per page to exercise pagination.
type fakeDynamo struct {
	mu       sync.Mutex
	pageSize int
	table    bool
	items    map[string]map[string]types.AttributeValue

	createCalls int
	queryCalls  int
}

func newFakeDynamo(pageSize int) *fakeDynamo {
	return &fakeDynamo{
		pageSize: pageSize,
		table:    true,
		items:    make(map[string]map[string]types.AttributeValue),
	}
}

func attrString(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func fakeKey(key map[string]types.AttributeValue) string {
	return attrString(key["user_id"]) + "\x00" + attrString(key["pattern_type"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := fakeKey(in.Key)
	item, ok := f.items[k]
	if !ok {
		item = copyItem(in.Key)
	} else {
		item = copyItem(item)
	}

	expr := aws.ToString(in.UpdateExpression)
	clauses := fakeClauseKeyword.FindAllStringSubmatchIndex(expr, -1)
	for i, c := range clauses {
		mode := expr[c[2]:c[3]]
		end := len(expr)
		if i+1 < len(clauses) {
			end = clauses[i+1][0]
		}
		body := expr[c[1]:end]
		switch mode {
		case "SET":
			for _, m := range fakeSetClause.FindAllStringSubmatch(body, -1) {
				name := in.ExpressionAttributeNames[m[1]]
				if m[2] != "" {
					if _, exists := item[name]; !exists {
						item[name] = in.ExpressionAttributeValues[m[2]]
					}
					continue
				}
				item[name] = in.ExpressionAttributeValues[m[3]]
			}
		case "ADD":
			for _, m := range fakeAddClause.FindAllStringSubmatch(body, -1) {
				name := in.ExpressionAttributeNames[m[1]]
				delta, err := strconv.Atoi(in.ExpressionAttributeValues[m[2]].(*types.AttributeValueMemberN).Value)
				if err != nil {
					return nil, err
				}
				current := 0
				if n, ok := item[name].(*types.AttributeValueMemberN); ok {
					current, _ = strconv.Atoi(n.Value)
				}
				item[name] = &types.AttributeValueMemberN{Value: strconv.Itoa(current + delta)}
			}
		default:
			return nil, fmt.Errorf("fake dynamo: unsupported update clause %q", mode)
		}
	}

	f.items[k] = item
	return &dynamodb.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, fakeKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++

	if len(in.ExpressionAttributeValues) != 1 {
		return nil, fmt.Errorf("fake dynamo: expected one key condition value")
	}
	var userID string
	for _, v := range in.ExpressionAttributeValues {
		userID = attrString(v)
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if attrString(item["user_id"]) == userID {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return attrString(matched[i]["pattern_type"]) < attrString(matched[j]["pattern_type"])
	})

	if in.ExclusiveStartKey != nil {
		after := attrString(in.ExclusiveStartKey["pattern_type"])
		i := sort.Search(len(matched), func(i int) bool {
			return attrString(matched[i]["pattern_type"]) > after
		})
		matched = matched[i:]
	}

	out := &dynamodb.QueryOutput{}
	if len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"user_id":      last["user_id"],
			"pattern_type": last["pattern_type"],
		}
	}
	for _, item := range matched {
		out.Items = append(out.Items, copyItem(item))
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.table {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
	}
	f.table = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.table {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func TestDynamoDBStore_CreateTable(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing table", func(t *testing.T) {
		fake := newFakeDynamo(10)
		fake.table = false
		s := NewDynamoDBStoreFromClient(fake, "insights")

		require.NoError(t, s.CreateTable(ctx))
		assert.Equal(t, 1, fake.createCalls)
		assert.True(t, fake.table)
	})

	t.Run("existing table is not an error", func(t *testing.T) {
		fake := newFakeDynamo(10)
		s := NewDynamoDBStoreFromClient(fake, "insights")

		require.NoError(t, s.CreateTable(ctx))
		assert.Equal(t, 1, fake.createCalls)
	})
}

func TestDynamoDBStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo(2)
	s := NewDynamoDBStoreFromClient(fake, "insights")
	user := newUserID()

	for i, pt := range []string{"avoidance", "catastrophizing", "perfectionism", "people_pleasing", "self_sabotage"} {
		_, err := s.Upsert(ctx, observation(user, pt, 4+i, baseTime))
		require.NoError(t, err)
	}

	records, err := s.List(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "self_sabotage", records[0].PatternType)
	assert.Equal(t, 3, fake.queryCalls)
}
