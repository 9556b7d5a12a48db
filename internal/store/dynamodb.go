package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	dynamoPK   = "PK"
	dynamoSK   = "SK"
	dynamoType = "Type"
)

// DynamoDBTable implements Table on a DynamoDB table keyed by PK (hash) and SK (range).
// Non-key attributes are stored flat next to the keys.
type DynamoDBTable struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewDynamoDBClient builds a client for the region. A non-empty endpoint targets
// DynamoDB Local with static dummy credentials.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoDBTable wraps the client and creates the table when it does not exist.
func NewDynamoDBTable(ctx context.Context, client *dynamodb.Client, tableName string, logger *zap.Logger) (*DynamoDBTable, error) {
	t := &DynamoDBTable{client: client, tableName: tableName, logger: logger}
	if err := t.EnsureTable(ctx); err != nil {
		return nil, err
	}
	logger.Info("dynamodb table ready", zap.String("table", tableName))
	return t, nil
}

// EnsureTable creates the table with on-demand billing if it is missing.
func (t *DynamoDBTable) EnsureTable(ctx context.Context) error {
	_, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", t.tableName, err)
	}

	_, err = t.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(t.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(dynamoPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(dynamoSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(dynamoPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(dynamoSK), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.tableName, err)
	}

	t.logger.Info("created dynamodb table, waiting for it to become active", zap.String("table", t.tableName))
	waiter := dynamodb.NewTableExistsWaiter(t.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", t.tableName, err)
	}
	return nil
}

func dynamoKey(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoPK: &types.AttributeValueMemberS{Value: key.PK},
		dynamoSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

func marshalDynamoItem(item Item) (map[string]types.AttributeValue, error) {
	attrs := make(map[string]interface{}, len(item.Attrs))
	for k, v := range normalizeAttrs(item.Attrs) {
		if k == dynamoPK || k == dynamoSK || k == dynamoType {
			return nil, fmt.Errorf("attribute name %q is reserved", k)
		}
		attrs[k] = v
	}

	av, err := attributevalue.MarshalMap(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item %s: %w", item.Key(), err)
	}
	av[dynamoPK] = &types.AttributeValueMemberS{Value: item.PK}
	av[dynamoSK] = &types.AttributeValueMemberS{Value: item.SK}
	av[dynamoType] = &types.AttributeValueMemberS{Value: item.Type}
	return av, nil
}

func unmarshalDynamoItem(av map[string]types.AttributeValue) (Item, error) {
	var raw map[string]interface{}
	if err := attributevalue.UnmarshalMap(av, &raw); err != nil {
		return Item{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	item := Item{Attrs: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		switch k {
		case dynamoPK:
			item.PK, _ = v.(string)
		case dynamoSK:
			item.SK, _ = v.(string)
		case dynamoType:
			item.Type, _ = v.(string)
		default:
			item.Attrs[k] = v
		}
	}
	item.Attrs = normalizeAttrs(item.Attrs)
	return item, nil
}

func unmarshalDynamoItems(avs []map[string]types.AttributeValue) ([]Item, error) {
	items := make([]Item, 0, len(avs))
	for _, av := range avs {
		item, err := unmarshalDynamoItem(av)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns the item stored at key with a consistent read.
func (t *DynamoDBTable) Get(ctx context.Context, key Key) (*Item, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	item, err := unmarshalDynamoItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Query returns the partition's items with the given SK prefix, ordered by SK.
func (t *DynamoDBTable) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": dynamoPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: pk}},
		ConsistentRead:            aws.Bool(true),
		ScanIndexForward:          aws.Bool(true),
	}
	if skPrefix != "" {
		input.KeyConditionExpression = aws.String("#pk = :pk AND begins_with(#sk, :prefix)")
		input.ExpressionAttributeNames["#sk"] = dynamoSK
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query partition %s: %w", pk, err)
		}
		batch, err := unmarshalDynamoItems(page.Items)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

// Scan returns every item matching the filter.
func (t *DynamoDBTable) Scan(ctx context.Context, filter Filter) ([]Item, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(t.tableName),
		ConsistentRead: aws.Bool(true),
	}

	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if filter.Type != "" {
		conds = append(conds, "#type = :type")
		names["#type"] = dynamoType
		values[":type"] = &types.AttributeValueMemberS{Value: filter.Type}
	}
	if filter.SK != "" {
		conds = append(conds, "#sk = :sk")
		names["#sk"] = dynamoSK
		values[":sk"] = &types.AttributeValueMemberS{Value: filter.SK}
	}
	if filter.SKPrefix != "" {
		conds = append(conds, "begins_with(#sk, :prefix)")
		names["#sk"] = dynamoSK
		values[":prefix"] = &types.AttributeValueMemberS{Value: filter.SKPrefix}
	}
	if len(conds) > 0 {
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var items []Item
	paginator := dynamodb.NewScanPaginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		batch, err := unmarshalDynamoItems(page.Items)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

// Put writes the item.
func (t *DynamoDBTable) Put(ctx context.Context, item Item) error {
	av, err := marshalDynamoItem(item)
	if err != nil {
		return err
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key(), err)
	}
	return nil
}

// Delete removes the item.
func (t *DynamoDBTable) Delete(ctx context.Context, key Key) error {
	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.tableName),
		Key:       dynamoKey(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

// UpdateCounter issues a conditional UpdateItem. The item as stored when the
// condition was evaluated comes back in the ConditionalCheckFailedException.
func (t *DynamoDBTable) UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	cond := "attribute_exists(#pk)"
	values := map[string]types.AttributeValue{
		":delta": &types.AttributeValueMemberN{Value: fmt.Sprint(upd.Delta)},
		":zero":  &types.AttributeValueMemberN{Value: "0"},
	}
	if upd.Min != nil {
		cond += " AND #attr >= :min"
		values[":min"] = &types.AttributeValueMemberN{Value: fmt.Sprint(*upd.Min)}
	}

	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(t.tableName),
		Key:                 dynamoKey(key),
		UpdateExpression:    aws.String("SET #attr = if_not_exists(#attr, :zero) + :delta"),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#pk":   dynamoPK,
			"#attr": upd.Attr,
		},
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("failed to update counter on %s: %w", key, err)
		}
		if len(ccf.Item) == 0 {
			return nil, ErrNotFound
		}
		item, uerr := unmarshalDynamoItem(ccf.Item)
		if uerr != nil {
			return nil, uerr
		}
		return &item, ErrConditionFailed
	}

	item, err := unmarshalDynamoItem(out.Attributes)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Stats returns the table description counters. DynamoDB refreshes them roughly every six hours.
func (t *DynamoDBTable) Stats(ctx context.Context) (map[string]interface{}, error) {
	out, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.tableName)})
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", t.tableName, err)
	}
	return map[string]interface{}{
		"backend":      "dynamodb",
		"table":        t.tableName,
		"status":       string(out.Table.TableStatus),
		"total_items":  aws.ToInt64(out.Table.ItemCount),
		"table_size_b": aws.ToInt64(out.Table.TableSizeBytes),
	}, nil
}

// Close is a no-op; the SDK client holds no persistent connection state.
func (t *DynamoDBTable) Close() error {
	return nil
}

// Ensure DynamoDBTable implements Table
var _ Table = (*DynamoDBTable)(nil)
