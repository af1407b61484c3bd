package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

type mockObject struct {
	data     []byte
	metadata map[string]string
	modified time.Time
}

// mockS3 implements the client subset in memory so the adapter logic can
// be exercised without a bucket.
type mockS3 struct {
	mu   sync.Mutex
	objs map[string]mockObject
}

func newMockS3() *mockS3 { return &mockS3{objs: make(map[string]mockObject)} }

var errMockNotFound = errors.New("NotFound: no such key")

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objs[*in.Key] = mockObject{data: data, metadata: in.Metadata, modified: time.Now().UTC()}
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	obj, ok := m.objs[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, errMockNotFound
	}
	size := int64(len(obj.data))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: &size,
		Metadata:      obj.metadata,
		LastModified:  &obj.modified,
	}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	obj, ok := m.objs[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, errMockNotFound
	}
	size := int64(len(obj.data))
	return &s3.HeadObjectOutput{ContentLength: &size, Metadata: obj.metadata, LastModified: &obj.modified}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objs, *in.Key)
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objs {
		if in.Prefix == nil || len(k) >= len(*in.Prefix) && k[:len(*in.Prefix)] == *in.Prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		obj := m.objs[k]
		size := int64(len(obj.data))
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), Size: &size, LastModified: &obj.modified})
	}
	return out, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newS3WithClient(newMockS3(), "snapshots")
	zone := domain.ZoneCoord{X: 5, Y: 2, Z: -3}.ID()
	meta := Meta{Codec: "zstd", Kind: "cavern", Zone: zone, RawSize: 8192, SchemaVersion: 3}
	key := ZoneKey("cavern", zone)
	payload := bytes.Repeat([]byte("deep"), 256)

	info, err := store.Put(ctx, key, bytes.NewReader(payload), meta)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("size = %d", info.Size)
	}

	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, payload) {
		t.Fatal("payload corrupted")
	}
	// The envelope survives the metadata encode/decode.
	if got.Meta != meta {
		t.Fatalf("meta = %+v, want %+v", got.Meta, meta)
	}

	infos, err := store.List(ctx, KindPrefix("cavern"))
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %d", err, len(infos))
	}

	ok, err := store.Delete(ctx, key)
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, key); ok {
		t.Fatal("second delete reported existing")
	}
	if _, _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatal("missing bucket accepted")
	}
}

func TestAWSConfigUsesStaticCredentials(t *testing.T) {
	ctx := context.Background()
	cfg, err := awsConfig(ctx, S3Config{
		Region:          "eu-west-1",
		AccessKeyID:     "minio-access",
		SecretAccessKey: "minio-secret",
	})
	if err != nil {
		t.Fatalf("aws config: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("region = %q, want eu-west-1", cfg.Region)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if creds.AccessKeyID != "minio-access" || creds.SecretAccessKey != "minio-secret" {
		t.Fatalf("credentials = %q/%q, want the configured static pair", creds.AccessKeyID, creds.SecretAccessKey)
	}
}
