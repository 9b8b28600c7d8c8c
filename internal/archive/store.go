// Package archive persists closed conversation transcripts to S3 as
// durable JSON records with a monthly JSONL manifest.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pulsekit/pulsekit/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives conversation transcripts to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ErrTranscriptNotFound indicates no archived transcript exists for the
// conversation.
var ErrTranscriptNotFound = errors.New("archive: transcript not found")

// ArchiveTranscript writes a TranscriptRecord as JSON to S3 and appends to
// the monthly manifest. The record lands at two keys: a date-partitioned one
// for browsing and export, and a by-id one for direct lookup by the
// analysis pipeline.
func (s *Store) ArchiveTranscript(ctx context.Context, record *TranscriptRecord) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	now := record.ArchivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s3Key := fmt.Sprintf("transcripts/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), record.ConversationID)

	for _, key := range []string{s3Key, byIDKey(record.ConversationID)} {
		_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("archive: s3 put %s: %w", key, err)
		}
	}

	s.logger.Info("archived transcript to S3",
		"conversation_id", record.ConversationID,
		"s3_key", s3Key,
		"message_count", record.MessageCount,
		"interaction_type", record.InteractionType,
	)

	entry := ManifestEntry{
		ConversationID:  record.ConversationID,
		S3Key:           s3Key,
		OrgID:           record.OrgID,
		InteractionType: record.InteractionType,
		ArchivedAt:      now.Format(time.RFC3339),
		MessageCount:    record.MessageCount,
	}

	if err := s.AppendManifest(ctx, entry); err != nil {
		// The transcript itself is already archived, so only warn.
		s.logger.Warn("failed to append manifest", "error", err, "conversation_id", record.ConversationID)
	}

	return nil
}

// GetTranscript loads an archived transcript by conversation ID.
func (s *Store) GetTranscript(ctx context.Context, conversationID string) (*TranscriptRecord, error) {
	if !s.Enabled() {
		return nil, ErrTranscriptNotFound
	}

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(byIDKey(conversationID)),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, ErrTranscriptNotFound
		}
		return nil, fmt.Errorf("archive: s3 get transcript: %w", err)
	}
	defer resp.Body.Close()

	var record TranscriptRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("archive: decode transcript: %w", err)
	}
	return &record, nil
}

func byIDKey(conversationID string) string {
	return fmt.Sprintf("transcripts/v1/by-id/%s.json", conversationID)
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := time.Now().UTC()
	manifestKey := fmt.Sprintf("transcripts/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFoundErr(err) {
			return fmt.Errorf("archive: s3 get manifest: %w", err)
		}
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}

	return nil
}

// isNotFoundErr checks if the error is an S3 NoSuchKey error.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
