package snapshot

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// S3 implements Store on an S3-compatible backend (AWS S3 or MinIO), the
// cold tier. Single bucket; keys map to object keys directly and the
// codec envelope travels in user metadata.
type S3 struct {
	client s3API
	bucket string
}

// s3API is the client subset the store uses; tests substitute a mock.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds explicit construction parameters.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
}

// awsConfig resolves the SDK configuration for the store. Explicit
// credentials take precedence over the default chain, so MinIO-style
// deployments work without ambient AWS credentials.
func awsConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// NewS3 creates a cold-tier snapshot store from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	awsCfg, err := awsConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// newS3WithClient wires a pre-built client, used by tests.
func newS3WithClient(client s3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Driver() Driver { return DriverS3 }

const (
	mdCodec   = "snap-codec"
	mdKind    = "snap-kind"
	mdZone    = "snap-zone"
	mdRawSize = "snap-raw-size"
	mdSchema  = "snap-schema"
)

func encodeMeta(meta Meta) map[string]string {
	md := map[string]string{
		mdCodec:   meta.Codec,
		mdZone:    strconv.FormatInt(int64(meta.Zone), 10),
		mdRawSize: strconv.FormatInt(meta.RawSize, 10),
	}
	if meta.Kind != "" {
		md[mdKind] = meta.Kind
	}
	if meta.SchemaVersion != 0 {
		md[mdSchema] = strconv.FormatUint(uint64(meta.SchemaVersion), 10)
	}
	return md
}

func decodeMeta(md map[string]string) Meta {
	meta := Meta{Codec: md[mdCodec], Kind: md[mdKind]}
	if v, err := strconv.ParseInt(md[mdZone], 10, 64); err == nil {
		meta.Zone = domain.ZoneID(v)
	}
	if v, err := strconv.ParseInt(md[mdRawSize], 10, 64); err == nil {
		meta.RawSize = v
	}
	if v, err := strconv.ParseUint(md[mdSchema], 10, 32); err == nil {
		meta.SchemaVersion = uint32(v)
	}
	return meta
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader, meta Meta) (Info, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	input := &s3.PutObjectInput{
		Bucket:   &s.bucket,
		Key:      &clean,
		Body:     r,
		Metadata: encodeMeta(meta),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, fmt.Errorf("s3 put %s: %w", clean, err)
	}
	return s.Head(ctx, clean)
}

func (s *S3) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isS3NotFound(err) {
			return Info{}, nil, ErrNotFound
		}
		return Info{}, nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	info := Info{
		Key:          key,
		Size:         size,
		ETag:         trimETag(out.ETag),
		Meta:         decodeMeta(out.Metadata),
		LastModified: toTime(out.LastModified),
	}
	return info, out.Body, nil
}

func (s *S3) Head(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isS3NotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("s3 head %s: %w", key, err)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return Info{
		Key:          key,
		Size:         size,
		ETag:         trimETag(out.ETag),
		Meta:         decodeMeta(out.Metadata),
		LastModified: toTime(out.LastModified),
	}, nil
}

func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", key, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return true, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			infos = append(infos, Info{
				Key:          aws.ToString(obj.Key),
				Size:         size,
				ETag:         trimETag(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *S3) Close() error { return nil }

func isS3NotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404")
}

func trimETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, "\"")
}

func toTime(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}
