package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3InstructionState reads the instructions from a single S3 object.
type S3InstructionState struct {
	bucket string
	key    string
	s3     objectGetter
}

func NewS3InstructionState(client objectGetter, bucket, key string) *S3InstructionState {
	return &S3InstructionState{
		bucket: bucket,
		key:    key,
		s3:     client,
	}
}

func (s *S3InstructionState) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instructions object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
