// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"engagement-rewards/ledger"
)

// ObjectPutter is the part of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Receipt is the archived record of credit issued in one sink call.
type Receipt struct {
	ID          string         `json:"id"`
	CustomerKey string         `json:"customer_key"`
	Total       ledger.Money   `json:"total"`
	Grants      []ledger.Grant `json:"grants"`
	IssuedAt    time.Time      `json:"issued_at"`
}

// ReceiptArchiver writes grant receipts as JSON objects to an R2 bucket.
type ReceiptArchiver struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

// NewR2Client builds an S3 client against Cloudflare R2 for accountID.
func NewR2Client(ctx context.Context, accountID, accessKeyID, accessKeySecret string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func NewReceiptArchiver(client ObjectPutter, bucket string) *ReceiptArchiver {
	return &ReceiptArchiver{Client: client, Bucket: bucket, Prefix: "receipts"}
}

// ReceiptKey is receipts/<customer>/<yyyy-mm-dd>/<kind>-<id>.json.
func (a *ReceiptArchiver) ReceiptKey(r Receipt) string {
	kind := "credit"
	if len(r.Grants) == 1 {
		kind = string(r.Grants[0].Kind)
	}
	return fmt.Sprintf("%s/%s/%s/%s-%s.json",
		a.Prefix,
		slug.Make(r.CustomerKey),
		r.IssuedAt.UTC().Format("2006-01-02"),
		slug.Make(kind),
		r.ID,
	)
}

// Archive uploads r and returns its object key. A missing ID or IssuedAt is filled in.
func (a *ReceiptArchiver) Archive(ctx context.Context, r Receipt) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.IssuedAt.IsZero() {
		r.IssuedAt = time.Now()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode receipt: %w", err)
	}

	key := a.ReceiptKey(r)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt to R2: %w", err)
	}
	return key, nil
}
