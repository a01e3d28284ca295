package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// Defaults for S3Storage.
const (
	DefaultSignedURLExpiry = time.Hour

	// maxDeleteBatch is the S3 limit of keys per DeleteObjects call.
	maxDeleteBatch = 1000

	deleteConcurrency = 4
)

// S3API is the subset of *s3.Client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UploadMetadata is applied to every object written by S3Storage.
type UploadMetadata struct {
	ACL                types.ObjectCannedACL
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	StorageClass       types.StorageClass
	Metadata           map[string]string
}

// S3Config configures an S3Storage.
type S3Config struct {
	Options

	// Bucket is the bucket name. Required.
	Bucket string

	// Folder is an optional key prefix inside the bucket.
	Folder string

	// PublicURL is the base URL of unsigned links.
	// Defaults to https://<bucket>.s3.amazonaws.com.
	PublicURL string

	// UnsignedURLs returns public object URLs instead of presigned ones.
	UnsignedURLs bool

	// SignedURLExpiry is the lifetime of presigned URLs. Defaults to one hour.
	SignedURLExpiry time.Duration

	// UploadMetadata is attached to uploaded objects.
	UploadMetadata UploadMetadata
}

// S3Storage stores files in an S3 compatible bucket.
type S3Storage struct {
	base
	client    S3API
	presigner PresignFunc
	cfg       S3Config
}

// PresignFunc returns a signed GET URL for the object.
type PresignFunc func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)

// NewS3Storage returns a storage writing to cfg.Bucket through client.
// When client is an *s3.Client, presigned URLs are produced with
// s3.NewPresignClient.
func NewS3Storage(client S3API, cfg S3Config) (*S3Storage, error) {
	b, err := newBase(cfg.Options)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}
	if cfg.SignedURLExpiry == 0 {
		cfg.SignedURLExpiry = DefaultSignedURLExpiry
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "https://" + cfg.Bucket + ".s3.amazonaws.com"
	}
	cfg.Folder = strings.Trim(cfg.Folder, "/")

	s := &S3Storage{base: b, client: client, cfg: cfg}
	if c, ok := client.(*s3.Client); ok {
		pc := s3.NewPresignClient(c)
		s.presigner = func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
			req, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			}, s3.WithPresignExpires(expiry))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		}
	}
	return s, nil
}

// WithPresigner overrides how signed URLs are generated.
func (s *S3Storage) WithPresigner(fn PresignFunc) *S3Storage {
	s.presigner = fn
	return s
}

func (s *S3Storage) objectKey(key string) string {
	if s.cfg.Folder == "" {
		return key
	}
	return s.cfg.Folder + "/" + key
}

// StoreFile uploads r under a newly generated key.
func (s *S3Storage) StoreFile(ctx context.Context, fileName string, r io.Reader) (string, error) {
	key, err := s.GenerateFileKey(fileName)
	if err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   r,
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	md := s.cfg.UploadMetadata
	in.ACL = md.ACL
	in.StorageClass = md.StorageClass
	in.Metadata = md.Metadata
	if md.CacheControl != "" {
		in.CacheControl = aws.String(md.CacheControl)
	}
	if md.ContentDisposition != "" {
		in.ContentDisposition = aws.String(md.ContentDisposition)
	}
	if md.ContentEncoding != "" {
		in.ContentEncoding = aws.String(md.ContentEncoding)
	}
	if md.ContentLanguage != "" {
		in.ContentLanguage = aws.String(md.ContentLanguage)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// GenerateFileURL returns a presigned URL, or the public URL when signing is disabled.
func (s *S3Storage) GenerateFileURL(ctx context.Context, key, rootURL string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if s.cfg.UnsignedURLs || s.presigner == nil {
		return strings.TrimSuffix(s.cfg.PublicURL, "/") + "/" + escapePath(s.objectKey(key)), nil
	}
	return s.presigner(ctx, s.cfg.Bucket, s.objectKey(key), s.cfg.SignedURLExpiry)
}

// GetFile downloads the object stored under key.
func (s *S3Storage) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, err
	}
	return out.Body, nil
}

// DeleteFile removes the object stored under key.
func (s *S3Storage) DeleteFile(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

// BulkDeleteFiles deletes keys in batches of 1000, several batches at a time.
func (s *S3Storage) BulkDeleteFiles(ctx context.Context, keys []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)

	for start := 0; start < len(keys); start += maxDeleteBatch {
		batch := keys[start:min(start+maxDeleteBatch, len(keys))]
		g.Go(func() error {
			objects := make([]types.ObjectIdentifier, 0, len(batch))
			for _, key := range batch {
				if err := ValidateKey(key); err != nil {
					return err
				}
				objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.objectKey(key))})
			}
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.cfg.Bucket),
				Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return err
			}
			if len(out.Errors) > 0 {
				e := out.Errors[0]
				return fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
			}
			return nil
		})
	}
	return g.Wait()
}

// GetFileKeys lists every key below the configured folder.
func (s *S3Storage) GetFileKeys(ctx context.Context) ([]string, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return fileKeys(files), nil
}

// ListFiles lists every object directly below the configured folder.
func (s *S3Storage) ListFiles(ctx context.Context) ([]FileInfo, error) {
	prefix := s.prefix()

	var files []FileInfo
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			// Objects in nested "folders" belong to other storages.
			if key == "" || strings.Contains(key, "/") {
				continue
			}
			files = append(files, FileInfo{Key: key, ModTime: aws.ToTime(obj.LastModified)})
		}
	}
	return files, nil
}

// Location returns the bucket and folder as an s3 URL.
func (s *S3Storage) Location() string {
	return "s3://" + s.cfg.Bucket + "/" + s.prefix()
}

func (s *S3Storage) prefix() string {
	if s.cfg.Folder == "" {
		return ""
	}
	return s.cfg.Folder + "/"
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// S3ClientConfig configures NewS3Client.
type S3ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an *s3.Client from the default AWS configuration chain,
// overridden by the non-empty fields of cfg. Endpoint and UsePathStyle
// support S3 compatible services such as MinIO.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

var _ Storage = (*S3Storage)(nil)
