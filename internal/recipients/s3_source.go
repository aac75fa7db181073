package recipients

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Source loads an uploaded recipient list (CSV, address in the first column)
// and turns it into paste text.
type S3Source struct {
	bucket     string
	downloader *manager.Downloader
}

func NewS3Source(cfg aws.Config, bucket string) *S3Source {
	return &S3Source{
		bucket:     bucket,
		downloader: manager.NewDownloader(s3.NewFromConfig(cfg)),
	}
}

// PasteText downloads key and returns one address per line.
func (s *S3Source) PasteText(ctx context.Context, key string) (string, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return csvToLines(bytes.NewReader(buf.Bytes()))
}

func csvToLines(r io.Reader) (string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		sb.WriteString(strings.TrimSpace(rec[0]))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
