package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"caller-lookup-bot/internal/domain"
)

type fakeDynamo struct {
	getOut        *dynamodb.GetItemOutput
	getErr        error
	putErr        error
	deleteErr     error
	lastGetInput  *dynamodb.GetItemInput
	lastPutInput  *dynamodb.PutItemInput
	lastDelInput  *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)

	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestGet_HappyPath(t *testing.T) {
	session := domain.Session{
		ChatID:         42,
		Status:         domain.StatusAwaitingOtp,
		PhoneNumber:    "+919999999999",
		LoginChallenge: `{"requestId":"X"}`,
		UpdatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: sessionItem(session)}}
	c := mustNewClient(t, db)

	got, found, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.UpdatedAt.Equal(session.UpdatedAt))
	got.UpdatedAt = session.UpdatedAt
	require.Equal(t, session, got)
}

func TestGet_UsesConsistentRead(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, _, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, db.lastGetInput)
	require.NotNil(t, db.lastGetInput.ConsistentRead)
	require.True(t, *db.lastGetInput.ConsistentRead)
	pk := db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS)
	require.Equal(t, "CHAT#42", pk.Value)
}

func TestGet_MissingRecord(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)

	_, found, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGet_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)

	_, _, err := c.Get(context.Background(), 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Get")
}

func TestGet_UnknownStatus(t *testing.T) {
	item := sessionItem(domain.Session{ChatID: 42, Status: domain.StatusLoggedIn})
	item["status"] = &types.AttributeValueMemberS{Value: "half_logged_in"}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	c := mustNewClient(t, db)

	_, _, err := c.Get(context.Background(), 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown session status")
}

func TestPut_RoundTripsChallengeUnmodified(t *testing.T) {
	challenge := `{"requestId":"X","parsedCountryCode":"IN","extra":[1,2,3]}`
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.Put(context.Background(), domain.Session{
		ChatID:         42,
		Status:         domain.StatusAwaitingOtp,
		PhoneNumber:    "+919999999999",
		LoginChallenge: challenge,
	})
	require.NoError(t, err)
	require.NotNil(t, db.lastPutInput)

	stored := db.lastPutInput.Item["loginChallenge"].(*types.AttributeValueMemberS)
	require.Equal(t, challenge, stored.Value)
}

func TestPut_RejectsUnknownStatus(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.Put(context.Background(), domain.Session{ChatID: 42, Status: "weird"})
	require.Error(t, err)
	require.Nil(t, db.lastPutInput)
}

func TestPut_PutItemError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("boom")}
	c := mustNewClient(t, db)
	err := c.Put(context.Background(), domain.Session{ChatID: 42, Status: domain.StatusAwaitingPhone})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Put")
}

func TestDelete_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.Delete(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, db.lastDelInput)
	pk := db.lastDelInput.Key["PK"].(*types.AttributeValueMemberS)
	require.Equal(t, "CHAT#42", pk.Value)
}

func TestDelete_DeleteItemError(t *testing.T) {
	db := &fakeDynamo{deleteErr: errors.New("boom")}
	c := mustNewClient(t, db)
	err := c.Delete(context.Background(), 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Delete")
}

func TestItemToSession_EveryStatusRoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	sessions := []domain.Session{
		{ChatID: 1, Status: domain.StatusLoggedOut, UpdatedAt: now},
		{ChatID: 2, Status: domain.StatusAwaitingPhone, UpdatedAt: now},
		{ChatID: 3, Status: domain.StatusAwaitingOtp, PhoneNumber: "+911", LoginChallenge: "{}", UpdatedAt: now},
		{ChatID: 4, Status: domain.StatusLoggedIn, InstallationID: "abc", CountryCode: "91", UpdatedAt: now},
	}
	for _, want := range sessions {
		got, err := itemToSession(sessionItem(want))
		require.NoError(t, err, "status=%s", want.Status)
		require.True(t, got.UpdatedAt.Equal(want.UpdatedAt), "status=%s", want.Status)
		got.UpdatedAt = want.UpdatedAt
		require.Equal(t, want, got)
	}
}
