package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-translator/internal/domain"
)

const (
	pkPrefixGroup  = "GROUP#"
	skPrefixMember = "MEMBER#"
)

// Sentinel errors surfaced to the dispatcher. Conflict and not-found come
// from the store's own conditional-write rejection, never from a prior read,
// so there is no read-then-write race window.
var (
	ErrInvalidArgument = errors.New("repository: invalid argument")
	ErrConflict        = errors.New("repository: member already exists")
	ErrNotFound        = errors.New("repository: member not found")
)

// dynamodbAPI is the minimal DynamoDB interface required by Directory.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Directory is the authoritative mapping from (group, user) to membership
// state, backed by one DynamoDB table partitioned by group.
type Directory struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a Directory over the given table.
func New(api dynamodbAPI, tableName string) (*Directory, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Directory{api: api, tableName: tableName, now: time.Now}, nil
}

// memberItem is the stored shape of a membership record.
type memberItem struct {
	PK           string    `dynamodbav:"PK"`
	SK           string    `dynamodbav:"SK"`
	GroupName    string    `dynamodbav:"groupName"`
	UserID       string    `dynamodbav:"userId"`
	Language     string    `dynamodbav:"language"`
	ConnectionID string    `dynamodbav:"connectionId"`
	UpdatedAt    time.Time `dynamodbav:"updatedAt,unixtime"`
}

func groupPK(group string) string {
	return pkPrefixGroup + group
}

func memberSK(user string) string {
	return skPrefixMember + user
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func memberKey(group, user string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: groupPK(group)},
		"SK": &types.AttributeValueMemberS{Value: memberSK(user)},
	}
}

func toItem(m domain.Member) memberItem {
	return memberItem{
		PK:           groupPK(m.GroupName),
		SK:           memberSK(m.UserID),
		GroupName:    m.GroupName,
		UserID:       m.UserID,
		Language:     m.Language,
		ConnectionID: m.ConnectionID,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (it memberItem) toMember() domain.Member {
	return domain.Member{
		GroupName:    it.GroupName,
		UserID:       it.UserID,
		Language:     it.Language,
		ConnectionID: it.ConnectionID,
		UpdatedAt:    it.UpdatedAt,
	}
}

func unmarshalMember(item map[string]types.AttributeValue) (domain.Member, error) {
	var it memberItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return domain.Member{}, fmt.Errorf("repository: unmarshal member: %w", err)
	}
	return it.toMember(), nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Add persists a new membership record with a server-assigned timestamp.
// A record already present for the same (group, user) yields ErrConflict,
// detected via the conditional put rather than a prior read.
func (d *Directory) Add(ctx context.Context, m domain.Member) error {
	if blank(m.GroupName) || blank(m.UserID) {
		return fmt.Errorf("%w: group and user are required", ErrInvalidArgument)
	}
	m.UpdatedAt = d.now().UTC()

	item, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return fmt.Errorf("repository: Add marshal: %w", err)
	}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("%w: %s in %s", ErrConflict, m.UserID, m.GroupName)
		}
		return fmt.Errorf("repository: Add: %w", err)
	}
	return nil
}

// Remove deletes the record for (group, user). A missing record yields
// ErrNotFound via the conditional delete.
func (d *Directory) Remove(ctx context.Context, group, user string) error {
	if blank(group) || blank(user) {
		return fmt.Errorf("%w: group and user are required", ErrInvalidArgument)
	}

	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 memberKey(group, user),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("%w: %s in %s", ErrNotFound, user, group)
		}
		return fmt.Errorf("repository: Remove: %w", err)
	}
	return nil
}

// Get returns the record for (group, user). Absence is an expected outcome
// for presence checks, so it is reported through the boolean, not an error.
func (d *Directory) Get(ctx context.Context, group, user string) (domain.Member, bool, error) {
	if blank(group) || blank(user) {
		return domain.Member{}, false, fmt.Errorf("%w: group and user are required", ErrInvalidArgument)
	}

	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            memberKey(group, user),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Member{}, false, nil
	}

	m, err := unmarshalMember(out.Item)
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	return m, true, nil
}

// ListGroup returns every member of the group. An empty slice means the
// group has no members; the directory keeps no separate group-existence
// record, so callers cannot distinguish an empty group from an unknown one.
func (d *Directory) ListGroup(ctx context.Context, group string) ([]domain.Member, error) {
	if blank(group) {
		return nil, fmt.Errorf("%w: group is required", ErrInvalidArgument)
	}

	members := make([]domain.Member, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: groupPK(group)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListGroup query: %w", err)
		}
		for _, item := range out.Items {
			m, err := unmarshalMember(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListGroup: %w", err)
			}
			members = append(members, m)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return members, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// scanUser pages through the table collecting every record with the given
// userId, regardless of group.
func (d *Directory) scanUser(ctx context.Context, user string) ([]domain.Member, error) {
	members := make([]domain.Member, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(d.tableName),
			FilterExpression: aws.String("userId = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: user},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: scan user: %w", err)
		}
		for _, item := range out.Items {
			m, err := unmarshalMember(item)
			if err != nil {
				return nil, fmt.Errorf("repository: scan user: %w", err)
			}
			members = append(members, m)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return members, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// IsUserOnline reports whether at least one membership record anywhere
// bears the userId. A live connection id is not required; presence here
// affirms directory membership only.
func (d *Directory) IsUserOnline(ctx context.Context, user string) (bool, error) {
	if blank(user) {
		return false, fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	records, err := d.scanUser(ctx, user)
	if err != nil {
		return false, fmt.Errorf("repository: IsUserOnline: %w", err)
	}
	return len(records) > 0, nil
}

// IsUserNameAvailable reports whether no record anywhere bears the userId.
func (d *Directory) IsUserNameAvailable(ctx context.Context, user string) (bool, error) {
	if blank(user) {
		return false, fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	records, err := d.scanUser(ctx, user)
	if err != nil {
		return false, fmt.Errorf("repository: IsUserNameAvailable: %w", err)
	}
	return len(records) == 0, nil
}

// DeleteUser removes every membership record bearing the userId, across all
// groups. Deleting a user with no records is a no-op.
func (d *Directory) DeleteUser(ctx context.Context, user string) error {
	if blank(user) {
		return fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	records, err := d.scanUser(ctx, user)
	if err != nil {
		return fmt.Errorf("repository: DeleteUser: %w", err)
	}
	for _, m := range records {
		_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.tableName),
			Key:       memberKey(m.GroupName, m.UserID),
		})
		if err != nil {
			return fmt.Errorf("repository: DeleteUser delete %s/%s: %w", m.GroupName, m.UserID, err)
		}
	}
	return nil
}

// ListAll returns every membership record across all groups. Used for the
// administrative presence listing.
func (d *Directory) ListAll(ctx context.Context) ([]domain.Member, error) {
	members := make([]domain.Member, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListAll scan: %w", err)
		}
		for _, item := range out.Items {
			m, err := unmarshalMember(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListAll: %w", err)
			}
			members = append(members, m)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return members, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
