// Package export writes a session's video package to disk and renders the
// stage graph as a Mermaid diagram.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/status"
)

// PackageExport is the JSON document written for one language version.
type PackageExport struct {
	SessionID         string                        `json:"sessionId"`
	Language          string                        `json:"language"`
	Primary           bool                          `json:"primary"`
	ExportedAt        string                        `json:"exportedAt"`
	ScamReport        record.ScamReport             `json:"scamReport"`
	CreatorConfig     record.CreatorConfig          `json:"creatorConfig"`
	VideoInput        record.VisualAudioInput       `json:"videoInput"`
	SensitivityReport record.SensitivityCheckOutput `json:"sensitivityReport"`
	Warnings          []string                      `json:"warnings,omitempty"`
	Social            *record.SocialOutput          `json:"social,omitempty"`
	Clips             []record.VeoClip              `json:"clips,omitempty"`
	Stages            []StageExport                 `json:"stages"`
}

// StageExport describes one pipeline stage.
type StageExport struct {
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Revision int    `json:"revision,omitempty"`
}

// ExportPackage builds one PackageExport per language of the assembled
// package in st, ordered by language code.
func ExportPackage(st *state.PipelineState, now time.Time) ([]PackageExport, error) {
	if !st.Status(state.StagePackage).Done() {
		return nil, fmt.Errorf("export: session %s has no assembled package (status %s)",
			st.SessionID, st.Status(state.StagePackage))
	}
	var pkg record.VideoPackage
	if err := st.Decode(state.StagePackage, &pkg); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	var social *record.SocialOutput
	if st.Status(state.StageSocial).Done() {
		var s record.SocialOutput
		if err := st.Decode(state.StageSocial, &s); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		social = &s
	}
	var clips []record.VeoClip
	if st.Visual != nil {
		clips = st.Visual.Clips
	}

	var stages []StageExport
	for _, si := range status.Summarize(st).Stages {
		stages = append(stages, StageExport{Stage: string(si.Stage), Status: string(si.Status), Revision: si.Revision})
	}

	codes := make([]string, 0, len(pkg.VideoInputs))
	for code := range pkg.VideoInputs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	primary := pkg.CreatorConfig.PrimaryLanguage().Code()
	exportedAt := now.UTC().Format(time.RFC3339)
	out := make([]PackageExport, 0, len(codes))
	for _, code := range codes {
		pe := PackageExport{
			SessionID:         pkg.SessionID,
			Language:          code,
			Primary:           code == primary,
			ExportedAt:        exportedAt,
			ScamReport:        pkg.ScamReport,
			CreatorConfig:     pkg.CreatorConfig,
			VideoInput:        pkg.VideoInputs[code],
			SensitivityReport: pkg.SensitivityReport,
			Warnings:          pkg.Warnings,
			Social:            social,
			Stages:            stages,
		}
		// Clips are rendered from the primary language script only.
		if pe.Primary {
			pe.Clips = clips
		}
		out = append(out, pe)
	}
	return out, nil
}

// FileName returns the file an export is written to.
func FileName(pe PackageExport) string {
	return fmt.Sprintf("package-%s.json", pe.Language)
}

// WritePackages writes each export to dir and returns the written paths.
func WritePackages(dir string, exports []PackageExport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", dir, err)
	}
	var paths []string
	for _, pe := range exports {
		data, err := json.MarshalIndent(pe, "", "  ")
		if err != nil {
			return paths, fmt.Errorf("export: marshal %s: %w", pe.Language, err)
		}
		path := filepath.Join(dir, FileName(pe))
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return paths, fmt.Errorf("export: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
