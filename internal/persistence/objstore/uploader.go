package objstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Uploader mirrors sealed journal segments out-of-band. Enqueue is safe to
// call from a journal seal callback and never blocks: a saturated queue
// drops the segment (the local file stays, nothing is lost).
type Uploader struct {
	client  *Client
	dataDir string
	prefix  string
	logger  *log.Logger

	jobs chan string
	wg   sync.WaitGroup
}

func NewUploader(client *Client, dataDir, prefix string, workers, queueCapacity int, logger *log.Logger) *Uploader {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	u := &Uploader{
		client:  client,
		dataDir: dataDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:  logger,
		jobs:    make(chan string, queueCapacity),
	}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			for p := range u.jobs {
				u.uploadOne(p)
			}
		}()
	}
	return u
}

func (u *Uploader) Enqueue(localPath string) {
	if u == nil || u.client == nil {
		return
	}
	select {
	case u.jobs <- localPath:
	default:
		u.printf("objstore drop local=%s reason=queue_saturated", localPath)
	}
}

// Close drains the queue and waits for in-flight uploads.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	close(u.jobs)
	u.wg.Wait()
}

func (u *Uploader) uploadOne(localPath string) {
	key, err := u.objectKey(localPath)
	if err != nil {
		u.printf("objstore skip local=%s err=%v", localPath, err)
		return
	}
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = u.client.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			u.printf("objstore uploaded key=%s", key)
			return
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * 200 * time.Millisecond)
		}
	}
	u.printf("objstore upload failed key=%s err=%v", key, lastErr)
}

// objectKey maps a local segment path to its key relative to the data dir.
func (u *Uploader) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	absBase, err := filepath.Abs(u.dataDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s outside data dir %s", absLocal, absBase)
	}
	if u.prefix != "" {
		return path.Join(u.prefix, rel), nil
	}
	return rel, nil
}

func (u *Uploader) printf(format string, args ...any) {
	if u.logger != nil {
		u.logger.Printf(format, args...)
	}
}
