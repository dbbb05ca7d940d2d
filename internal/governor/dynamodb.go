package governor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// ErrConcurrentUpdate is returned when another run changed the record between load and save
var ErrConcurrentUpdate = errors.New("attempt record changed concurrently")

const (
	attrResourceID = "ResourceId"
	attrKind       = "Kind"
)

// DynamoStore keeps records in a DynamoDB table keyed by ResourceId. Reads are
// strongly consistent and writes are conditional on the count read, so two
// runs racing on the same resource cannot both record the same attempt.
type DynamoStore struct {
	client awscp.DynamoDBAPI
	table  string
}

// NewDynamoStore creates a DynamoDB-backed store
func NewDynamoStore(client awscp.DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Load reads the record with a consistent read
func (s *DynamoStore) Load(ctx context.Context, snap *types.ResourceSnapshot) (types.AttemptRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]dbtypes.AttributeValue{attrResourceID: &dbtypes.AttributeValueMemberS{Value: snap.ID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.AttemptRecord{}, fmt.Errorf("failed to read attempt record for %s: %w", snap.ID, err)
	}
	if out.Item == nil {
		return types.AttemptRecord{}, nil
	}

	tags := make(map[string]string, 2)
	if v, ok := out.Item[types.TagHealingAttempts].(*dbtypes.AttributeValueMemberN); ok {
		tags[types.TagHealingAttempts] = v.Value
	}
	if v, ok := out.Item[types.TagLastHealed].(*dbtypes.AttributeValueMemberS); ok {
		tags[types.TagLastHealed] = v.Value
	}
	return ParseRecord(tags), nil
}

// saveCondition guards the write against a concurrent update. Load reads a
// missing, non-numeric or negative count as zero, so a zero prev must accept
// every one of those stored shapes.
func saveCondition(prev types.AttemptRecord) (string, map[string]string, map[string]dbtypes.AttributeValue) {
	names := map[string]string{"#attempts": types.TagHealingAttempts}
	values := map[string]dbtypes.AttributeValue{
		":prev": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(prev.Attempts)},
	}
	if prev.Attempts > 0 {
		return "#attempts = :prev", names, values
	}
	names["#id"] = attrResourceID
	values[":number"] = &dbtypes.AttributeValueMemberS{Value: "N"}
	return "attribute_not_exists(#id) OR attribute_not_exists(#attempts) OR " +
		"NOT attribute_type(#attempts, :number) OR #attempts <= :prev", names, values
}

// Save writes next only if the stored count still matches prev
func (s *DynamoStore) Save(ctx context.Context, ref types.ResourceRef, prev, next types.AttemptRecord) error {
	condition, names, values := saveCondition(prev)
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]dbtypes.AttributeValue{
			attrResourceID:           &dbtypes.AttributeValueMemberS{Value: ref.ID},
			attrKind:                 &dbtypes.AttributeValueMemberS{Value: string(ref.Kind)},
			types.TagHealingAttempts: &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(next.Attempts)},
			types.TagLastHealed:      &dbtypes.AttributeValueMemberS{Value: next.LastHealed.UTC().Format(time.RFC3339)},
		},
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%s: %w", ref, ErrConcurrentUpdate)
		}
		return fmt.Errorf("failed to write attempt record for %s: %w", ref, err)
	}
	return nil
}

// Name identifies the backend in logs
func (s *DynamoStore) Name() string { return "dynamodb" }
