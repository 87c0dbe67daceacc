// Package archive uploads sealed VM traces to S3-compatible cold
// storage, so a (out-of-scope) narrator or compliance
// reviewer can retrieve a run's full history long after the orchestrating
// process has exited.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chronolab/chronovm/pkg/trace/xdrcodec"
	"github.com/chronolab/chronovm/pkg/vm/trace"
)

// Config configures the S3 destination a run's trace is archived to.
type Config struct {
	Bucket string
	Prefix string
	Region string
	// EndpointURL overrides the default AWS endpoint resolution, for
	// S3-compatible object stores (MinIO, R2) used in self-hosted setups.
	EndpointURL string
}

// Archiver uploads sealed traces to S3.
type Archiver struct {
	client *s3.Client
	cfg    Config
}

// New builds an Archiver from cfg, loading AWS credentials the standard way
// (environment, shared config file, instance role).
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &Archiver{client: client, cfg: cfg}, nil
}

// key returns the S3 object key a run's trace is stored under: one object
// per run, named by project and a caller-supplied run identifier so
// repeated archival of the same run is idempotent (overwrite, not append).
func (a *Archiver) key(projectID, runID string) string {
	prefix := a.cfg.Prefix
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%s.xdr", prefix, projectID, runID)
}

// PutTrace XDR-encodes t and uploads it under projectID/runID.
func (a *Archiver) PutTrace(ctx context.Context, projectID, runID string, t trace.Trace) error {
	encoded, err := xdrcodec.Encode(t)
	if err != nil {
		return fmt.Errorf("archive: encoding trace: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(projectID, runID)),
		Body:   bytes.NewReader(encoded),
	})
	if err != nil {
		return fmt.Errorf("archive: uploading trace: %w", err)
	}
	return nil
}

// GetTrace downloads and decodes a previously archived trace.
func (a *Archiver) GetTrace(ctx context.Context, projectID, runID string) (trace.Trace, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(projectID, runID)),
	})
	if err != nil {
		return trace.Trace{}, fmt.Errorf("archive: downloading trace: %w", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return trace.Trace{}, fmt.Errorf("archive: reading trace body: %w", err)
	}

	return xdrcodec.Decode(buf.Bytes())
}

// RetentionDeadline returns the time a trace archived at archivedAt becomes
// eligible for lifecycle expiry, given the bucket's configured retention
// window. Callers use this to decide whether a trace referenced by an
// audit entry is still expected to be retrievable.
func RetentionDeadline(archivedAt time.Time, retention time.Duration) time.Time {
	return archivedAt.Add(retention)
}
