package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"caller-lookup-bot/internal/domain"
)

const skSession = "SESSION#"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a DynamoDB table holding one session record per chat.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// chatPK returns the DynamoDB partition key for a chat.
func chatPK(chatID int64) string {
	return "CHAT#" + strconv.FormatInt(chatID, 10)
}

func sessionKey(chatID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// Get loads the session for a chat. A consistent read is required: a webhook
// redelivery is an independent invocation that must observe the previous
// delivery's write.
func (c *Client) Get(ctx context.Context, chatID int64) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(chatID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}

	session, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return session, true, nil
}

// Put writes or replaces the session record for session.ChatID.
// Last write wins; there is at most one record per chat.
func (c *Client) Put(ctx context.Context, session domain.Session) error {
	if !session.Status.Valid() {
		return fmt.Errorf("repository: Put: unknown status %q", session.Status)
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(session),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Delete removes the session record, reverting the chat to logged out.
// Deleting an absent record is not an error.
func (c *Client) Delete(ctx context.Context, chatID int64) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       sessionKey(chatID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionItem(session domain.Session) map[string]types.AttributeValue {
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: chatPK(session.ChatID)},
		"SK":             &types.AttributeValueMemberS{Value: skSession},
		"chatId":         &types.AttributeValueMemberN{Value: strconv.FormatInt(session.ChatID, 10)},
		"status":         &types.AttributeValueMemberS{Value: string(session.Status)},
		"phoneNumber":    &types.AttributeValueMemberS{Value: session.PhoneNumber},
		"loginChallenge": &types.AttributeValueMemberS{Value: session.LoginChallenge},
		"installationId": &types.AttributeValueMemberS{Value: session.InstallationID},
		"countryCode":    &types.AttributeValueMemberS{Value: session.CountryCode},
		"updatedAt":      &types.AttributeValueMemberS{Value: updatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	chatID, err := int64Attr(item, "chatId")
	if err != nil {
		return domain.Session{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Session{}, err
	}
	if !domain.Status(status).Valid() {
		return domain.Session{}, fmt.Errorf("repository: unknown session status %q", status)
	}
	phone, _ := strAttr(item, "phoneNumber")        // allow empty
	challenge, _ := strAttr(item, "loginChallenge") // allow empty
	installationID, _ := strAttr(item, "installationId")
	countryCode, _ := strAttr(item, "countryCode")

	session := domain.Session{
		ChatID:         chatID,
		Status:         domain.Status(status),
		PhoneNumber:    phone,
		LoginChallenge: challenge,
		InstallationID: installationID,
		CountryCode:    countryCode,
	}
	if raw, attrErr := strAttr(item, "updatedAt"); attrErr == nil {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			session.UpdatedAt = ts
		}
	}
	return session, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
