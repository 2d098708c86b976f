package products

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
)

// BatchGetItem accepts at most this many keys per call.
const maxBatchKeys = 100

const maxUnprocessedRounds = 5

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	newID     func() string
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		newID:     uuid.NewString,
	}
}

func (s *Store) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// GetAll scans the whole table.
func (s *Store) GetAll(ctx context.Context) ([]Product, error) {
	var (
		out   []Product
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, apperrors.Transient(fmt.Errorf("scan products: %w", err))
		}
		var batch []Product
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

// GetByID fetches one product. Returns an ErrNotFound error when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(id),
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("get product: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound("product", id)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetByIDs returns the subset of ids that exist, in no particular order.
// Missing ids are not an error; callers compare counts.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	var out []Product
	for startIdx := 0; startIdx < len(ids); startIdx += maxBatchKeys {
		end := min(startIdx+maxBatchKeys, len(ids))
		keys := make([]map[string]types.AttributeValue, 0, end-startIdx)
		for _, id := range ids[startIdx:end] {
			keys = append(keys, s.key(id))
		}
		request := map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys},
		}

		for round := 0; len(request) > 0; round++ {
			if round == maxUnprocessedRounds {
				return nil, apperrors.Transient(fmt.Errorf("batch get products: unprocessed keys after %d rounds", round))
			}
			res, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, apperrors.Transient(fmt.Errorf("batch get products: %w", err))
			}
			var batch []Product
			if err := attributevalue.UnmarshalListOfMaps(res.Responses[s.tableName], &batch); err != nil {
				return nil, fmt.Errorf("unmarshal products: %w", err)
			}
			out = append(out, batch...)
			request = res.UnprocessedKeys
		}
	}
	return out, nil
}

// Create stores p under a freshly generated id; any id set by the caller is discarded.
func (s *Store) Create(ctx context.Context, p Product) (*Product, error) {
	p.ID = s.newID()
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("put product: %w", err))
	}
	return &p, nil
}

// Update overwrites the mutable attributes of an existing product. It never
// creates: a missing id yields an ErrNotFound error.
func (s *Store) Update(ctx context.Context, id string, p Product) (*Product, error) {
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":name":       p.ProductName,
		":code":       p.Code,
		":price":      p.Price,
		":model":      p.Model,
		":productUrl": p.ProductURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal product update: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(id),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		UpdateExpression:          aws.String("SET productName = :name, code = :code, price = :price, model = :model, productUrl = :productUrl"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, apperrors.Transient(fmt.Errorf("update product: %w", err))
	}
	var updated Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	updated.ID = id
	return &updated, nil
}

// Delete removes a product and returns the record as it was before deletion.
func (s *Store) Delete(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          s.key(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("delete product: %w", err))
	}
	if len(out.Attributes) == 0 {
		return nil, apperrors.NotFound("product", id)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}
