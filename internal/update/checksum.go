package update

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	apperrors "upcheck/internal/errors"
)

// ParseChecksumFile parses a checksums.txt file and returns a map of filename to checksum.
// Format: "sha256hash  filename" (two spaces between hash and filename)
func ParseChecksumFile(r io.Reader) (map[string]string, error) {
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on double space (standard format) or single space
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			parts = strings.SplitN(line, " ", 2)
		}
		if len(parts) != 2 {
			continue
		}

		hash := strings.TrimSpace(parts[0])
		// sha256sum marks binary mode with a leading '*'.
		filename := strings.TrimPrefix(strings.TrimSpace(parts[1]), "*")
		filename = filepath.Base(filename)

		if hash != "" && filename != "" {
			checksums[filename] = hash
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}

	return checksums, nil
}

// parseChecksum extracts the SHA-256 for assetName from a detached checksum file.
// The file is either a bare hex digest or sha256sum output.
func parseChecksum(content, assetName string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "checksum file is empty", nil)
	}

	if !strings.ContainsAny(trimmed, " \t\n") {
		return ValidateContentHash(trimmed)
	}

	sums, err := ParseChecksumFile(strings.NewReader(trimmed))
	if err != nil {
		return "", apperrors.New(apperrors.CodeHashUnavailable, "parse checksum file", err)
	}
	if hash, ok := sums[assetName]; ok {
		return ValidateContentHash(hash)
	}
	if len(sums) == 1 {
		for _, hash := range sums {
			return ValidateContentHash(hash)
		}
	}
	return "", apperrors.New(apperrors.CodeHashUnavailable,
		fmt.Sprintf("checksum for %s not found", assetName), nil)
}
