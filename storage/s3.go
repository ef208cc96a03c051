package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// S3Schemes are the location schemes served by S3FileIO.
var S3Schemes = []string{"s3", "s3a", "s3n"}

// S3FileIO implements FileIO on Amazon S3 or a compatible service.
// Locations are s3://bucket/key. Output is buffered in memory and uploaded
// with a single PutObject on Close, so nothing is visible before that.
//
// Deleting a missing object is a no-op: S3 DeleteObject is idempotent.
// Directories are emulated with zero-byte "key/" marker objects. Mkdir only
// checks the target key itself: a plain object at an ancestor key does not
// make it fail, unlike the local and HDFS backends which report
// ErrAlreadyExists.
type S3FileIO struct {
	client    s3iface.S3API
	region    string
	overwrite bool
	log       *slog.Logger
	tr        *ErrorTranslator
	loc       locator
}

// NewS3FileIO creates an S3 backend.
//
// Config keys: region (default us-east-1), endpoint, access_key, secret_key,
// session_token, force_path_style, timeout, overwrite. Without access_key the
// default AWS credential chain applies.
func NewS3FileIO(cfg interfaces.BackendConfig, log *slog.Logger) (*S3FileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	region := cfg.GetDefault("region", "us-east-1")
	awsCfg := aws.Config{
		Region:     aws.String(region),
		HTTPClient: &http.Client{Timeout: settings.timeout},
	}

	if endpoint := cfg.Get("endpoint"); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
	}

	forcePathStyle, err := cfg.Bool("force_path_style", false)
	if err != nil {
		return nil, err
	}
	awsCfg.S3ForcePathStyle = aws.Bool(forcePathStyle)

	if accessKey := cfg.Get("access_key"); accessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(accessKey, cfg.Get("secret_key"), cfg.Get("session_token"))
		log.Debug("Using static S3 credentials")
	} else {
		log.Debug("No S3 credentials configured, using the default credential chain")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewS3FileIOWithClient(s3.New(sess), cfg, log)
}

// NewS3FileIOWithClient creates an S3 backend around an existing client.
func NewS3FileIOWithClient(client s3iface.S3API, cfg interfaces.BackendConfig, log *slog.Logger) (*S3FileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	tr := NewErrorTranslator("s3", ClassifyAWSError)
	return &S3FileIO{
		client:    client,
		region:    cfg.GetDefault("region", "us-east-1"),
		overwrite: settings.overwrite,
		log:       log,
		tr:        tr,
		loc: locator{
			schemes:       S3Schemes,
			needAuthority: true,
			tr:            tr,
		},
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *S3FileIO) Properties() interfaces.BackendProperties {
	return interfaces.BackendProperties{
		Name:          fmt.Sprintf("s3-%s", b.region),
		Schemes:       S3Schemes,
		DeleteMissing: interfaces.DeleteMissingIgnored,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *S3FileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}
	bucket, key := loc.Authority, loc.Key()

	open := func(ctx context.Context) (io.ReadCloser, error) {
		out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		return out.Body, nil
	}
	size := func(ctx context.Context) (int64, error) {
		out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return 0, err
		}
		return aws.Int64Value(out.ContentLength), nil
	}

	return newInputFile(ctx, location, open, size, b.tr), nil
}

// NewOutputFile implements interfaces.FileIO.
func (b *S3FileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}
	bucket, key := loc.Authority, loc.Key()

	commit := func(ctx context.Context, data []byte) error {
		start := time.Now()

		if !b.overwrite {
			exists, err := b.exists(ctx, bucket, key)
			if err != nil {
				return err
			}
			if exists {
				return b.tr.Failure(interfaces.KindAlreadyExists, "commit", location, fs.ErrExist)
			}
		}

		if err := b.put(ctx, bucket, key, data); err != nil {
			b.log.Error("Failed to upload object to S3",
				slog.String("bucket", bucket),
				slog.String("key", key),
				"err", err,
				slog.Duration("duration", time.Since(start)))
			return err
		}

		b.log.Debug("Stored object in S3",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))
		return nil
	}

	return newOutputFile(ctx, location, bufferedStage(commit), b.tr), nil
}

// DeleteFile implements interfaces.FileIO. Only the exact key is removed,
// so directory markers ("key/") are never touched.
func (b *S3FileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}

	_, err = b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Authority),
		Key:    aws.String(loc.Key()),
	})
	if err != nil {
		// A missing bucket is as absent as a missing key.
		if b.tr.Kind(err) == interfaces.KindNotFound {
			return nil
		}
		b.log.Error("Failed to delete object from S3", slog.String("location", location), "err", err)
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted object from S3", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO by writing a "key/" marker. Prefixes
// are implicit in S3, so ancestors need no markers of their own.
func (b *S3FileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}
	bucket, key := loc.Authority, loc.Key()

	isDir, err := b.exists(ctx, bucket, key+"/")
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if isDir {
		return false, nil
	}

	isFile, err := b.exists(ctx, bucket, key)
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if isFile {
		return false, b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist)
	}

	if err := b.put(ctx, bucket, key+"/", nil); err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	b.log.Debug("Created S3 directory marker", slog.String("location", location))
	return true, nil
}

func (b *S3FileIO) put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (b *S3FileIO) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if b.tr.Kind(err) == interfaces.KindNotFound {
		return false, nil
	}
	return false, err
}
