package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger implements Store on an embedded badger database, the warm tier:
// faster than object storage, survives restarts, no external service.
// The payload lives at the key; a `!meta` suffixed entry carries the
// envelope so Head and List never load payloads.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

const badgerMetaSuffix = "!meta"

// BadgerConfig configures the warm tier database.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string
	// InMemory keeps the whole database in process memory, for tests.
	InMemory bool
	// SyncWrites forces fsync on every commit.
	SyncWrites bool
	// TTL expires entries after the given duration. Zero keeps entries
	// until deleted. Only safe when a colder tier holds the durable copy.
	TTL time.Duration
}

// NewBadger opens (or creates) a badger-backed snapshot store.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger snapshot store: path required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger snapshot store: %w", err)
	}
	return &Badger{db: db, ttl: cfg.TTL}, nil
}

func (s *Badger) Driver() Driver { return DriverBadger }

type badgerMeta struct {
	Meta      Meta      `json:"meta"`
	ETag      string    `json:"etag"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Badger) Put(ctx context.Context, key string, r io.Reader, meta Meta) (Info, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	sum := sha256.Sum256(payload)
	bm := badgerMeta{
		Meta:      meta,
		ETag:      hex.EncodeToString(sum[:]),
		Size:      int64(len(payload)),
		UpdatedAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(bm)
	if err != nil {
		return Info{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		payloadEntry := badger.NewEntry([]byte(clean), payload)
		metaEntry := badger.NewEntry([]byte(clean+badgerMetaSuffix), encoded)
		if s.ttl > 0 {
			payloadEntry = payloadEntry.WithTTL(s.ttl)
			metaEntry = metaEntry.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(payloadEntry); err != nil {
			return err
		}
		return txn.SetEntry(metaEntry)
	})
	if err != nil {
		return Info{}, fmt.Errorf("badger put %s: %w", clean, err)
	}
	return Info{Key: clean, Size: bm.Size, ETag: bm.ETag, Meta: meta, LastModified: bm.UpdatedAt}, nil
}

func (s *Badger) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	var payload []byte
	var bm badgerMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		metaItem, err := txn.Get([]byte(key + badgerMetaSuffix))
		if err != nil {
			return err
		}
		return metaItem.Value(func(v []byte) error { return json.Unmarshal(v, &bm) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Info{}, nil, ErrNotFound
	}
	if err != nil {
		return Info{}, nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	info := Info{Key: key, Size: bm.Size, ETag: bm.ETag, Meta: bm.Meta, LastModified: bm.UpdatedAt}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Badger) Head(ctx context.Context, key string) (Info, error) {
	var bm badgerMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key + badgerMetaSuffix))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &bm) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("badger head %s: %w", key, err)
	}
	return Info{Key: key, Size: bm.Size, ETag: bm.ETag, Meta: bm.Meta, LastModified: bm.UpdatedAt}, nil
}

func (s *Badger) Delete(ctx context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key + badgerMetaSuffix))
	})
	if err != nil {
		return false, fmt.Errorf("badger delete %s: %w", key, err)
	}
	return existed, nil
}

func (s *Badger) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := string(item.Key())
			if len(k) <= len(badgerMetaSuffix) || k[len(k)-len(badgerMetaSuffix):] != badgerMetaSuffix {
				continue
			}
			var bm badgerMeta
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &bm) }); err != nil {
				return err
			}
			key := k[:len(k)-len(badgerMetaSuffix)]
			infos = append(infos, Info{Key: key, Size: bm.Size, ETag: bm.ETag, Meta: bm.Meta, LastModified: bm.UpdatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list %s: %w", prefix, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Badger) Close() error { return s.db.Close() }
