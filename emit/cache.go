package emit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"emberjit/ir"
)

const (
	// MagicNumber identifies an emberjit bytecode cache file.
	MagicNumber uint32 = 0x454d4252 // "EMBR"
	// FormatVersion is the cache container format version.
	FormatVersion uint32 = 1
	// CacheDir is the name of the per-user cache directory.
	CacheDir = ".emberjit_cache"
)

// HashSource returns the SHA-256 digest of a source blob, used to
// invalidate a cached image when the statements that produced it
// change.
func HashSource(source []byte) [32]byte {
	return sha256.Sum256(source)
}

// Serialize wraps an *ir.Image with a magic number, format version,
// timestamp and source hash, producing a self-describing cache file
// body.
func Serialize(img *ir.Image, sourceHash [32]byte) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.BigEndian, MagicNumber); err != nil {
		return nil, fmt.Errorf("emit: write magic number: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, FormatVersion); err != nil {
		return nil, fmt.Errorf("emit: write version: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, int64(time.Now().Unix())); err != nil {
		return nil, fmt.Errorf("emit: write timestamp: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, sourceHash); err != nil {
		return nil, fmt.Errorf("emit: write source hash: %w", err)
	}
	if err := img.Encode(&buf); err != nil {
		return nil, fmt.Errorf("emit: encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// Deserialize reverses Serialize, returning the decoded image and the
// source hash it was built against.
func Deserialize(data []byte) (*ir.Image, [32]byte, error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, [32]byte{}, fmt.Errorf("emit: read magic number: %w", err)
	}
	if magic != MagicNumber {
		return nil, [32]byte{}, fmt.Errorf("emit: invalid magic number: expected %x, got %x", MagicNumber, magic)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, [32]byte{}, fmt.Errorf("emit: read version: %w", err)
	}
	if version != FormatVersion {
		return nil, [32]byte{}, fmt.Errorf("emit: unsupported cache format version: %d", version)
	}

	var timestamp int64
	if err := binary.Read(r, binary.BigEndian, &timestamp); err != nil {
		return nil, [32]byte{}, fmt.Errorf("emit: read timestamp: %w", err)
	}

	var sourceHash [32]byte
	if err := binary.Read(r, binary.BigEndian, &sourceHash); err != nil {
		return nil, [32]byte{}, fmt.Errorf("emit: read source hash: %w", err)
	}

	img, err := ir.Decode(r)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("emit: decode image: %w", err)
	}

	return img, sourceHash, nil
}

// GetCacheDir returns the cache directory path, creating it if absent.
func GetCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("emit: get home directory: %w", err)
	}

	cacheDir := filepath.Join(homeDir, CacheDir)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("emit: create cache directory: %w", err)
	}

	return cacheDir, nil
}

// GetCacheFilePath returns the cache file path for a given key (e.g. a
// source file path or a function name).
func GetCacheFilePath(key string) (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}

	keyHash := sha256.Sum256([]byte(key))
	filename := fmt.Sprintf("%x.ejc", keyHash[:8])

	return filepath.Join(cacheDir, filename), nil
}

// SaveToCache persists img to the cache file for key.
func SaveToCache(key string, img *ir.Image, sourceHash [32]byte) error {
	cacheFile, err := GetCacheFilePath(key)
	if err != nil {
		return err
	}

	data, err := Serialize(img, sourceHash)
	if err != nil {
		return fmt.Errorf("emit: serialize image: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("emit: write cache file: %w", err)
	}

	return nil
}

// LoadFromCache loads the image cached for key, rejecting it if
// currentSourceHash no longer matches the hash it was cached under.
func LoadFromCache(key string, currentSourceHash [32]byte) (*ir.Image, error) {
	cacheFile, err := GetCacheFilePath(key)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("emit: cache file does not exist")
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("emit: read cache file: %w", err)
	}

	img, cachedHash, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("emit: deserialize cache file: %w", err)
	}

	if cachedHash != currentSourceHash {
		return nil, fmt.Errorf("emit: cache is stale for %q", key)
	}

	return img, nil
}

// ClearCache removes all cache files.
func ClearCache() error {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return err
	}

	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("emit: clear cache: %w", err)
	}

	return nil
}

// GetCacheStats returns the number of cached images and their total
// size on disk.
func GetCacheStats() (count int, totalSize int64, err error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return 0, 0, err
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return 0, 0, fmt.Errorf("emit: read cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".ejc" {
			continue
		}
		count++
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
	}

	return count, totalSize, nil
}
