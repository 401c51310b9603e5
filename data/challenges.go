package data

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/halyardhq/walletgate/proto"
)

// Challenge is the durable single-use record. ExpiresAt doubles as the
// DynamoDB TTL attribute, so the backend expires items natively; Consume
// still checks it because DynamoDB TTL deletion is lazy.
type Challenge struct {
	ID        string              `dynamodbav:"ID"`
	ExpiresAt time.Time           `dynamodbav:"ExpiresAt,unixtime"`
	Data      proto.ChallengeData `dynamodbav:"Data"`
}

func (c *Challenge) Key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ID": &types.AttributeValueMemberS{Value: c.ID},
	}
}

type ChallengeIndices struct{}

type ChallengeTable struct {
	db       DB
	tableARN string
	indices  ChallengeIndices
}

func NewChallengeTable(db DB, tableARN string, indices ChallengeIndices) *ChallengeTable {
	return &ChallengeTable{
		db:       db,
		tableARN: tableARN,
		indices:  indices,
	}
}

func (t *ChallengeTable) Put(ctx context.Context, challenge *Challenge) error {
	av, err := attributevalue.MarshalMap(challenge)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName: &t.tableARN,
		Item:      av,
	}
	if _, err := t.db.PutItem(ctx, input); err != nil {
		return fmt.Errorf("PutItem: %w", err)
	}
	return nil
}

// Consume deletes the record and returns its previous value in one call.
// DeleteItem with ReturnValues=ALL_OLD is atomic, so two racing consumers of
// the same id see at most one hit.
func (t *ChallengeTable) Consume(ctx context.Context, id string) (*proto.ChallengeData, bool, error) {
	challenge := Challenge{ID: id}

	out, err := t.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &t.tableARN,
		Key:          challenge.Key(),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, false, fmt.Errorf("DeleteItem: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, false, nil
	}

	if err := attributevalue.UnmarshalMap(out.Attributes, &challenge); err != nil {
		return nil, false, fmt.Errorf("unmarshal result: %w", err)
	}
	if time.Now().After(challenge.ExpiresAt) {
		return nil, false, nil
	}
	return &challenge.Data, true, nil
}
