package msglog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// Archiver uploads a sealed segment's data file to a remote object store
// before the retention cleaner deletes it locally, giving operators a
// cold tier beyond RetentionPeriod without keeping segments on local
// disk forever. Optional: a nil *Archiver on Cleaner disables archiving
// entirely and the cleaner deletes outright.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver builds an Archiver targeting bucket, optionally rooted at
// prefix (e.g. the broker's hostname, to disambiguate multiple brokers
// archiving to one bucket).
func NewArchiver(client *s3.Client, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads seg's data file under <prefix>/<namespace>/<topic>/<base>.data
// and returns once the upload is acknowledged. The index file is not
// archived: it is cheap to rebuild from the data file's record headers,
// and archiving it would double the object count for no read benefit.
func (a *Archiver) Archive(ctx context.Context, topicDir string, seg *Segment) error {
	f, err := os.Open(seg.dataPath)
	if err != nil {
		return errors.Wrap(err, "msglog: open segment data file for archive")
	}
	defer f.Close()

	// topicDir is <root>/<namespace>/<topic>; keep both trailing
	// components so same-named topics in different namespaces don't
	// collide on one key.
	nsTopic := filepath.Join(filepath.Base(filepath.Dir(topicDir)), filepath.Base(topicDir))
	key := filepath.ToSlash(filepath.Join(a.prefix, nsTopic, filepath.Base(seg.dataPath)))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return errors.Wrap(err, "msglog: upload segment to archive")
}

// ArchiveBeforeRemove wraps Archiver.Archive and Log.RemoveSegment so the
// cleaner can offer an archive-then-delete policy instead of delete-only.
func (l *Log) ArchiveBeforeRemove(ctx context.Context, a *Archiver, baseOffset uint64) (bool, error) {
	l.mu.RLock()
	var target *Segment
	for _, seg := range l.segments {
		if seg.BaseOffset == baseOffset {
			target = seg
			break
		}
	}
	l.mu.RUnlock()

	if target == nil {
		return false, nil
	}
	if err := a.Archive(ctx, l.dir, target); err != nil {
		return false, err
	}
	return l.RemoveSegment(baseOffset)
}
