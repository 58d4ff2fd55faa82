package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// ChecksumSuffix names the sidecar that pins a config file's BLAKE3 hash.
const ChecksumSuffix = ".b3"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// WriteChecksum pins the current contents of configPath in its sidecar.
func WriteChecksum(configPath string) (string, error) {
	sum, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configPath+ChecksumSuffix, []byte(sum+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write checksum: %w", err)
	}
	return sum, nil
}

// Lock validates the config at configPath, ignoring any stale sidecar, and
// then pins its current contents. It returns the resolved path and hash.
func Lock(configPath string) (string, string, error) {
	cfg, err := load(configPath, false)
	if err != nil {
		return "", "", err
	}
	sum, err := WriteChecksum(cfg.SourcePath)
	if err != nil {
		return "", "", err
	}
	return cfg.SourcePath, sum, nil
}

// verifyChecksum rejects a config whose sidecar hash no longer matches.
// A missing sidecar is not an error.
func verifyChecksum(configPath string, data []byte) error {
	raw, err := os.ReadFile(configPath + ChecksumSuffix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checksum: %w", err)
	}

	expected := strings.TrimSpace(string(raw))
	if actual := hashBytes(data); actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"Hint: run 'lookout config lock' after reviewing the change", configPath, expected, actual)
	}
	return nil
}
