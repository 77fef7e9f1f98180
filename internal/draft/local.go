package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ojclient/internal/common/cache"
	"ojclient/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// LocalEntry is the fallback copy of an editor buffer.
type LocalEntry struct {
	Code     string    `json:"code"`
	Language string    `json:"language"`
	SavedAt  time.Time `json:"saved_at"`
}

// LocalCache keeps zstd-compressed buffer copies so unsaved work survives a
// failed server save.
type LocalCache struct {
	cache cache.BasicOps
	ttl   time.Duration
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewLocalCache stores entries in c for ttl (zero keeps them until evicted).
func NewLocalCache(c cache.BasicOps, ttl time.Duration) (*LocalCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &LocalCache{cache: c, ttl: ttl, enc: enc, dec: dec}, nil
}

// LocalKey names the cache entry of one problem and language.
func LocalKey(problemID int64, language string) string {
	return fmt.Sprintf("code-draft-%d-%s", problemID, language)
}

func (l *LocalCache) Put(ctx context.Context, problemID int64, entry LocalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal local draft failed: %w", err)
	}
	compressed := l.enc.EncodeAll(data, nil)
	if err := l.cache.Set(ctx, LocalKey(problemID, entry.Language), compressed, l.ttl); err != nil {
		return errors.Wrapf(err, errors.CacheError, "store local draft failed: %v", err)
	}
	return nil
}

// Get returns the entry and whether one exists.
func (l *LocalCache) Get(ctx context.Context, problemID int64, language string) (LocalEntry, bool, error) {
	var entry LocalEntry
	raw, err := l.cache.Get(ctx, LocalKey(problemID, language))
	if err != nil {
		return entry, false, errors.Wrapf(err, errors.CacheError, "load local draft failed: %v", err)
	}
	if raw == "" {
		return entry, false, nil
	}
	data, err := l.dec.DecodeAll([]byte(raw), nil)
	if err != nil {
		return entry, false, errors.Wrapf(err, errors.CacheError, "decompress local draft failed: %v", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, false, errors.Wrapf(err, errors.CacheError, "decode local draft failed: %v", err)
	}
	return entry, true, nil
}

func (l *LocalCache) Delete(ctx context.Context, problemID int64, language string) error {
	if err := l.cache.Del(ctx, LocalKey(problemID, language)); err != nil {
		return errors.Wrapf(err, errors.CacheError, "delete local draft failed: %v", err)
	}
	return nil
}

// Close releases the decoder's resources.
func (l *LocalCache) Close() {
	l.dec.Close()
}
