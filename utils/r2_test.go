package utils

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/ledger"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveWritesJSONReceipt(t *testing.T) {
	put := &fakePutter{}
	a := NewReceiptArchiver(put, "rewards")
	grant := ledger.Grant{
		Kind:      ledger.GrantOrder,
		Amount:    ledger.MustParseMoney("5.00", "CAD"),
		SourceKey: "order:1001",
		Reason:    "Order #1001 at 5%",
	}
	r := Receipt{
		ID:          "abc",
		CustomerKey: "42",
		Total:       grant.Amount,
		Grants:      []ledger.Grant{grant},
		IssuedAt:    time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC),
	}

	key, err := a.Archive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "receipts/42/2024-03-11/order-abc.json", key)
	assert.Equal(t, "rewards", *put.input.Bucket)
	assert.Equal(t, "application/json", *put.input.ContentType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(put.body, &decoded))
	assert.Equal(t, "42", decoded["customer_key"])
}

func TestArchiveFillsMissingID(t *testing.T) {
	put := &fakePutter{}
	a := NewReceiptArchiver(put, "rewards")
	key, err := a.Archive(context.Background(), Receipt{CustomerKey: "7"})
	require.NoError(t, err)
	assert.Contains(t, key, "receipts/7/")
	assert.Contains(t, key, "/credit-")
}

func TestArchivePropagatesUploadError(t *testing.T) {
	a := NewReceiptArchiver(&fakePutter{err: errors.New("boom")}, "rewards")
	_, err := a.Archive(context.Background(), Receipt{CustomerKey: "7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
