package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// ManifestFile is the bbolt file kept beside the index.
const ManifestFile = "manifest.db"

var bucketBuilds = []byte("builds")

// BuildInfo describes a completed build. It is written only after every
// entry has been stored, so its presence marks the index as complete.
type BuildInfo struct {
	Collection     string    `json:"collection"`
	Provider       string    `json:"provider"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Entries        int       `json:"entries"`
	Records        int       `json:"records"`
	BuiltAt        time.Time `json:"built_at"`
}

// Manifest records completed builds keyed by collection.
type Manifest struct {
	db *bbolt.DB
}

// OpenManifest opens or creates the manifest in dir.
func OpenManifest(dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, ManifestFile), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBuilds)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing manifest: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Get returns the build info for collection, or ok=false when none exists.
func (m *Manifest) Get(collection string) (info BuildInfo, ok bool, err error) {
	err = m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBuilds).Get([]byte(collection))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return BuildInfo{}, false, fmt.Errorf("reading manifest for %s: %w", collection, err)
	}
	return info, ok, nil
}

// Put records a completed build.
func (m *Manifest) Put(info BuildInfo) error {
	if info.Collection == "" {
		return errors.New("manifest entry needs a collection")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuilds).Put([]byte(info.Collection), data)
	})
}

// Delete removes the entry for collection. Missing entries are not an error.
func (m *Manifest) Delete(collection string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuilds).Delete([]byte(collection))
	})
}

// Close closes the underlying file.
func (m *Manifest) Close() error {
	return m.db.Close()
}
