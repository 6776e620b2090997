package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// DynamoAPI is the subset of the DynamoDB client the archive index uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// AWSBackend stores documents in S3 and indexes them in DynamoDB. Without a
// table the index is derived from the S3 listing.
type AWSBackend struct {
	dynamoDB  DynamoAPI
	s3Client  S3API
	tableName string
	bucket    string
}

// DynamoDBItem represents an index item stored in DynamoDB
type DynamoDBItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// NewAWSBackend loads the default AWS config, optionally with a shared profile.
func NewAWSBackend(ctx context.Context, tableName, bucket, region, profile string) (*AWSBackend, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	var ddb DynamoAPI
	if tableName != "" {
		ddb = dynamodb.NewFromConfig(cfg)
	}
	return NewAWSBackendWithClients(s3.NewFromConfig(cfg), ddb, bucket, tableName), nil
}

func NewAWSBackendWithClients(s3Client S3API, ddb DynamoAPI, bucket, tableName string) *AWSBackend {
	return &AWSBackend{dynamoDB: ddb, s3Client: s3Client, tableName: tableName, bucket: bucket}
}

// Save writes data to S3 as indented JSON
func (b *AWSBackend) Save(ctx context.Context, key string, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}

	_, err = b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

// Load reads a JSON document from S3 into target
func (b *AWSBackend) Load(ctx context.Context, key string, target any) error {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return ErrNotFound
		}
		return fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("reading S3 object body: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshaling S3 data: %w", err)
	}
	return nil
}

// Index records rec in DynamoDB under PK campaign#<id>.
func (b *AWSBackend) Index(ctx context.Context, rec Record) error {
	if b.dynamoDB == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	item := DynamoDBItem{
		PK:        "campaign#" + rec.CampaignID,
		SK:        "kind#" + rec.Kind,
		Data:      string(data),
		Timestamp: rec.ArchivedAt.UTC().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = b.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// Records lists a campaign's index entries, oldest first.
func (b *AWSBackend) Records(ctx context.Context, campaignID string) ([]Record, error) {
	if b.dynamoDB == nil {
		return b.listRecords(ctx, campaignID)
	}
	result, err := b.dynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(b.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "campaign#" + campaignID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	var items []DynamoDBItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item.Data), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ArchivedAt.Before(records[j].ArchivedAt) })
	return records, nil
}

func (b *AWSBackend) listRecords(ctx context.Context, campaignID string) ([]Record, error) {
	prefix := "campaigns/" + campaignID + "/"
	paginator := s3.NewListObjectsV2Paginator(b.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	records := []Record{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			rec := Record{
				CampaignID: campaignID,
				Kind:       strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json"),
				Key:        key,
			}
			if obj.LastModified != nil {
				rec.ArchivedAt = obj.LastModified.UTC()
			}
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ArchivedAt.Before(records[j].ArchivedAt) })
	return records, nil
}
