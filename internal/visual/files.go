package visual

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	dirCharacterRefs = "character_refs"
	dirClipRefs      = "clip_refs"
	dirClips         = "veo_clips"
	indexFile        = "index.json"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// gridFilenames names one reference grid per character role. A role whose
// sanitized name is already taken gets its 1-based position appended, so
// every character writes its own file.
func gridFilenames(roles []string) []string {
	names := make([]string, len(roles))
	used := make(map[string]bool, len(roles))
	for i, role := range roles {
		base := strings.Trim(unsafeName.ReplaceAllString(role, "_"), "_")
		if base == "" {
			base = "character"
		}
		name := base
		for n := i + 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		names[i] = name + "_2x2_grid.png"
	}
	return names
}

func frameFilename(segment int, frame string) string {
	return fmt.Sprintf("segment_%d_%s.png", segment, frame)
}

func clipFilename(segment int) string {
	return fmt.Sprintf("segment_%d.mp4", segment)
}

// writeAsset writes data to dir/name, creating dir, and returns the path.
func writeAsset(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("visual: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("visual: write %s: %w", path, err)
	}
	return path, nil
}

// writeIndex records the entries of an asset directory in its index.json.
func writeIndex(dir string, entries any) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("visual: encode index: %w", err)
	}
	_, err = writeAsset(dir, indexFile, data)
	return err
}

// readAsset loads a previously written asset. A missing file is not an
// error; it yields nil.
func readAsset(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("visual: read %s: %w", path, err)
	}
	return data, nil
}
