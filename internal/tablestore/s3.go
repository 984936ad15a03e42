package tablestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// S3API is the subset of the S3 client the store uses, for test fakes.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the rate table as a single object. Object PUTs are atomic on
// the service side, which gives the same no-torn-reads property the file
// store gets from rename. Meant for instances without durable local disk.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objKey(name string) string {
	return path.Join(s.prefix, path.Base(name))
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objKey(name)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, xerrors.Wrapf(err, "head s3://%s/%s", s.bucket, s.objKey(name))
	}
	return true, nil
}

func (s *S3Store) Load(ctx context.Context, name string) (traffic.Table, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objKey(name)),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", s.bucket, s.objKey(name))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read s3://%s/%s", s.bucket, s.objKey(name))
	}
	return Decode(data)
}

func (s *S3Store) Store(ctx context.Context, name string, t traffic.Table) error {
	data := Encode(t)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objKey(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, s.objKey(name))
	}
	return nil
}

var _ traffic.Store = (*S3Store)(nil)
