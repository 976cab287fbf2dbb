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
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

// S3 stores the same per-day JSON documents as the local backend in an
// S3-compatible bucket (R2, MinIO, AWS). Keys: <prefix>/news/<day>.json,
// <prefix>/ai/<day>.json, <prefix>/push/<day>.json. The push record check
// is read-then-write; the gate's single-writer discipline covers in-process
// races and the bucket should have one writer per deployment.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	mu     sync.Mutex
}

// NewS3 builds the client for the configured endpoint.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" {
		return nil, fmt.Errorf("storage: s3 backend needs endpoint and credentials")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &cfg.Endpoint
		o.UsePathStyle = true
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3) SaveNewsData(ctx context.Context, now time.Time, batch models.CrawlResults, idToName map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := now.Format("2006-01-02")
	doc := &dayDocument{
		Date:        day,
		SourceNames: map[string]string{},
		History:     models.TitleHistory{},
	}
	if err := s.getJSON(ctx, s.key("news", day), doc); err != nil && !isNotFound(err) {
		return err
	}

	doc.LastBatchNew = mergeBatch(doc.History, batch, now)
	doc.BatchCount++
	for id, name := range idToName {
		doc.SourceNames[id] = name
	}
	return s.putJSON(ctx, s.key("news", day), doc)
}

func (s *S3) ReadTodayTitles(ctx context.Context, day string) (models.TitleHistory, map[string]string, error) {
	var doc dayDocument
	if err := s.getJSON(ctx, s.key("news", day), &doc); err != nil {
		if isNotFound(err) {
			return models.TitleHistory{}, map[string]string{}, nil
		}
		return nil, nil, err
	}
	return doc.History, doc.SourceNames, nil
}

func (s *S3) DetectNewTitles(ctx context.Context, day string) (map[string][]string, error) {
	var doc dayDocument
	if err := s.getJSON(ctx, s.key("news", day), &doc); err != nil {
		if isNotFound(err) {
			return map[string][]string{}, nil
		}
		return nil, err
	}
	return doc.LastBatchNew, nil
}

func (s *S3) IsFirstCrawlToday(ctx context.Context, day string) (bool, error) {
	var doc dayDocument
	if err := s.getJSON(ctx, s.key("news", day), &doc); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return doc.BatchCount == 1, nil
}

func (s *S3) SaveAIResult(ctx context.Context, day string, result models.AIResult) error {
	return s.putJSON(ctx, s.key("ai", day), result)
}

func (s *S3) LatestAIResult(ctx context.Context) (models.AIResult, string, error) {
	prefix := s.prefix + "/ai/"
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: list ai results: %w", err)
	}

	var days []string
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(*obj.Key, prefix)
		if strings.HasSuffix(name, ".json") {
			days = append(days, strings.TrimSuffix(name, ".json"))
		}
	}
	if len(days) == 0 {
		return models.AIResult{}, "", ErrNoAIResult
	}
	sort.Strings(days)
	day := days[len(days)-1]

	var result models.AIResult
	if err := s.getJSON(ctx, s.key("ai", day), &result); err != nil {
		return models.AIResult{}, "", err
	}
	return result, day, nil
}

func (s *S3) HasPushedToday(ctx context.Context, day string) (bool, error) {
	key := s.key("push", day)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: head push record: %w", err)
	}
	return true, nil
}

func (s *S3) RecordPush(ctx context.Context, rec models.PushRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pushed, err := s.HasPushedToday(ctx, rec.Date)
	if err != nil {
		return err
	}
	if pushed {
		return nil
	}
	return s.putJSON(ctx, s.key("push", rec.Date), rec)
}

func (s *S3) Close() error { return nil }

func (s *S3) key(kind, day string) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, kind, day)
}

func (s *S3) getJSON(ctx context.Context, key string, v any) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

func (s *S3) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}
