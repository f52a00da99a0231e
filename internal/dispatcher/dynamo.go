package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// DynamoTracker keeps the counters in a DynamoDB table with a string hash key
// "key" and a numeric attribute "value".
type DynamoTracker struct {
	tableName string
	svc       dynamodbiface.DynamoDBAPI
	mu        sync.Mutex
}

func NewDynamoTracker(svc dynamodbiface.DynamoDBAPI, tableName string) *DynamoTracker {
	return &DynamoTracker{tableName: tableName, svc: svc}
}

// Incr adds a key to the table or increments its value if it already exists.
func (c *DynamoTracker) Incr(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.svc.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              c.key(key),
		UpdateExpression: aws.String("SET #cacheValue = if_not_exists(#cacheValue, :start) + :inc"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":start": {N: aws.String("0")},
			":inc":   {N: aws.String("1")},
		},
		ExpressionAttributeNames: map[string]*string{
			"#cacheValue": aws.String("value"),
		},
	})
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", key, err)
	}
	return nil
}

// Decr decreases the value associated with a key or deletes the key if the value becomes zero.
func (c *DynamoTracker) Decr(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.get(ctx, key)
	if err != nil || n == 0 {
		return err
	}
	if n > 1 {
		_, err = c.svc.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String(c.tableName),
			Key:              c.key(key),
			UpdateExpression: aws.String("SET #cacheValue = #cacheValue - :dec"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":dec": {N: aws.String("1")},
			},
			ExpressionAttributeNames: map[string]*string{
				"#cacheValue": aws.String("value"),
			},
		})
		if err != nil {
			return fmt.Errorf("decrementing %s: %w", key, err)
		}
		return nil
	}
	_, err = c.svc.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (c *DynamoTracker) Pending(ctx context.Context, key string) (int, error) {
	return c.get(ctx, key)
}

func (c *DynamoTracker) get(ctx context.Context, key string) (int, error) {
	result, err := c.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	attr, ok := result.Item["value"]
	if !ok || attr.N == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(*attr.N)
	if err != nil {
		return 0, fmt.Errorf("parsing counter for %s: %w", key, err)
	}
	return n, nil
}

func (c *DynamoTracker) key(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{"key": {S: aws.String(key)}}
}
