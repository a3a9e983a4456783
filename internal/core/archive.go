package core

import (
	"bytes"
	"classroom/internal/blob"
	"classroom/internal/infra/persistence/memory"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// ArchivePrefix is the blob key prefix under which snapshots are stored.
const ArchivePrefix = "snapshots/"

const archiveContentType = "application/zstd"

// ErrNoArchive is returned by Latest when no snapshot has been exported yet.
var ErrNoArchive = errors.New("no snapshot archive")

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Export writes the current store state to the blob store as zstd-compressed
// JSON and returns the stored blob.
func (c *Container) Export(ctx context.Context) (blob.Info, error) {
	return c.export(ctx, time.Now())
}

func (c *Container) export(ctx context.Context, now time.Time) (blob.Info, error) {
	snapshot := c.Store.ExportState()
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	key := ArchivePrefix + now.UTC().Format("20060102T150405.000000000Z") + ".json.zst"
	info, err := c.Blobs.Put(ctx, key, bytes.NewReader(compressed), blob.PutOptions{
		ContentType: archiveContentType,
		Metadata: map[string]string{
			"students": strconv.Itoa(len(snapshot.Students)),
			"classes":  strconv.Itoa(len(snapshot.Classes)),
			"exams":    strconv.Itoa(len(snapshot.Exams)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	c.logger.Info("snapshot exported", "key", key, "size_bytes", info.Size,
		"students", len(snapshot.Students), "classes", len(snapshot.Classes), "exams", len(snapshot.Exams))
	return info, nil
}

// Archives lists exported snapshots, oldest first.
func (c *Container) Archives(ctx context.Context) ([]blob.Info, error) {
	infos, err := c.Blobs.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json.zst") {
			out = append(out, info)
		}
	}
	return out, nil
}

// Latest returns the most recent snapshot archive.
func (c *Container) Latest(ctx context.Context) (blob.Info, error) {
	infos, err := c.Archives(ctx)
	if err != nil {
		return blob.Info{}, err
	}
	if len(infos) == 0 {
		return blob.Info{}, ErrNoArchive
	}
	return infos[len(infos)-1], nil
}

// Restore replaces the store state with the archived snapshot under key and
// makes every live subscription re-fetch.
func (c *Container) Restore(ctx context.Context, key string) error {
	_, rc, err := c.Blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()
	compressed, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", key, err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	if err := c.Store.Restore(ctx, snapshot); err != nil {
		return err
	}
	c.logger.Info("snapshot restored", "key", key)
	c.Invalidate()
	return nil
}
