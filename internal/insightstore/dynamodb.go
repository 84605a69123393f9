package insightstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	// Region is the AWS region.
	Region string

	// Endpoint overrides the service endpoint (DynamoDB Local, LocalStack).
	Endpoint string

	// TableName holds the records. Partition key user_id, sort key pattern_type.
	TableName string

	// CreateTable creates the table on startup when it is missing.
	CreateTable bool
}

// DefaultDynamoDBConfig returns sensible defaults.
func DefaultDynamoDBConfig() DynamoDBConfig {
	return DynamoDBConfig{
		Region:    "us-east-1",
		TableName: "insightd_insights",
	}
}

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoItem is the DynamoDB representation of a record.
type dynamoItem struct {
	UserID      string `dynamodbav:"user_id"`
	PatternType string `dynamodbav:"pattern_type"`
	ID          string `dynamodbav:"id"`
	InsightType string `dynamodbav:"insight_type"`
	Insight     string `dynamodbav:"insight"`
	Evidence    string `dynamodbav:"evidence"`
	Strength    int    `dynamodbav:"strength"`
	Occurrences int    `dynamodbav:"occurrences"`
	FirstSeen   string `dynamodbav:"first_seen"`
	LastSeen    string `dynamodbav:"last_seen"`
}

// DynamoDBStore is a DynamoDB-backed Store.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBStore loads AWS configuration and connects.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg.TableName == "" {
		cfg.TableName = DefaultDynamoDBConfig().TableName
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	s := NewDynamoDBStoreFromClient(dynamodb.NewFromConfig(awsCfg, ddbOpts...), cfg.TableName)
	if cfg.CreateTable {
		if err := s.CreateTable(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewDynamoDBStoreFromClient wraps an existing client.
func NewDynamoDBStoreFromClient(client DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

// CreateTable creates the records table if it doesn't exist and waits for it
// to become active.
func (s *DynamoDBStore) CreateTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("pattern_type"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("pattern_type"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return errors.Join(ErrMigrationFailed, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}, 2*time.Minute); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

func (s *DynamoDBStore) key(userID, patternType string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":      &types.AttributeValueMemberS{Value: userID},
		"pattern_type": &types.AttributeValueMemberS{Value: patternType},
	}
}

// Upsert implements Store. A single UpdateItem creates or updates the item;
// ADD on occurrences starts from zero when the attribute is absent.
func (s *DynamoDBStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	now := obs.ObservedAt.Format(time.RFC3339Nano)
	update := expression.
		Set(expression.Name("id"), expression.Value(RecordID(obs.UserID, obs.PatternType))).
		Set(expression.Name("insight_type"), expression.Value(obs.InsightType)).
		Set(expression.Name("insight"), expression.Value(obs.Insight)).
		Set(expression.Name("evidence"), expression.Value(obs.Evidence)).
		Set(expression.Name("strength"), expression.Value(obs.Strength)).
		Set(expression.Name("last_seen"), expression.Value(now)).
		Set(expression.Name("first_seen"), expression.Name("first_seen").IfNotExists(expression.Value(now))).
		Add(expression.Name("occurrences"), expression.Value(1))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamodb upsert: build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(obs.UserID, obs.PatternType),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb upsert: %w", err)
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("dynamodb upsert: decode: %w", err)
	}
	return item.toRecord()
}

// Delete implements Store.
func (s *DynamoDBStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(userID, patternType),
	}); err != nil {
		return fmt.Errorf("dynamodb delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *DynamoDBStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	keyCond := expression.Key("user_id").Equal(expression.Value(userID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamodb list: build expression: %w", err)
	}

	records := make([]Record, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb list: %w", err)
		}

		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("dynamodb list: decode: %w", err)
		}
		for i := range items {
			rec, err := items[i].toRecord()
			if err != nil {
				return nil, fmt.Errorf("dynamodb list: %w", err)
			}
			records = append(records, *rec)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return sortAndLimit(records, limit), nil
}

// Close implements Store. The AWS client holds no resources to release.
func (s *DynamoDBStore) Close() error {
	return nil
}

func (i *dynamoItem) toRecord() (*Record, error) {
	firstSeen, err := time.Parse(time.RFC3339Nano, i.FirstSeen)
	if err != nil {
		return nil, fmt.Errorf("decoding first_seen: %w", err)
	}
	lastSeen, err := time.Parse(time.RFC3339Nano, i.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("decoding last_seen: %w", err)
	}
	return &Record{
		ID:          i.ID,
		UserID:      i.UserID,
		PatternType: i.PatternType,
		InsightType: i.InsightType,
		Insight:     i.Insight,
		Evidence:    i.Evidence,
		Strength:    i.Strength,
		Occurrences: i.Occurrences,
		FirstSeen:   firstSeen.UTC(),
		LastSeen:    lastSeen.UTC(),
	}, nil
}

var _ Store = (*DynamoDBStore)(nil)
