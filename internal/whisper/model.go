package whisper

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const DefaultModel = "base"

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// modelChecksums pins the SHA-256 of every published ggml model the service
// can download, keyed by model name.
var modelChecksums = map[string]string{
	"tiny":     "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	"base":     "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	"small":    "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	"medium":   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	"large-v3": "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
}

// ResolvedModel is either a named model under the model directory or a
// user-supplied ggml file.
type ResolvedModel struct {
	Name          string
	Path          string
	URL           string
	SHA256        string
	NeedsDownload bool
	IsCustomPath  bool
}

// Label names the model for logs and status output.
func (m ResolvedModel) Label() string {
	if m.IsCustomPath {
		return filepath.Base(m.Path)
	}
	return m.Name
}

func ModelNames() []string {
	return slices.Sorted(maps.Keys(modelChecksums))
}

func modelFileName(name string) string {
	return "ggml-" + name + ".bin"
}

// ResolveModel maps a model name or ggml file path to a ResolvedModel. An
// empty reference selects DefaultModel.
func ResolveModel(modelRef, modelDir string) (ResolvedModel, error) {
	modelRef = strings.TrimSpace(modelRef)
	if modelRef == "" {
		modelRef = DefaultModel
	}

	if checksum, ok := modelChecksums[modelRef]; ok {
		return resolveNamed(modelRef, checksum, modelDir)
	}
	if !looksLikePath(modelRef) {
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", modelRef, strings.Join(ModelNames(), ", "))
	}
	return resolveCustom(modelRef)
}

func resolveNamed(name, checksum, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelDir) == "" {
		return ResolvedModel{}, errors.New("model directory must not be empty for named model")
	}

	fileName := modelFileName(name)
	path := filepath.Join(modelDir, fileName)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return ResolvedModel{}, fmt.Errorf("stat model path: %w", err)
	case info.IsDir():
		return ResolvedModel{}, fmt.Errorf("model path %s is a directory", path)
	}

	return ResolvedModel{
		Name:          name,
		Path:          path,
		URL:           modelBaseURL + fileName,
		SHA256:        checksum,
		NeedsDownload: err != nil,
	}, nil
}

func resolveCustom(modelRef string) (ResolvedModel, error) {
	path := filepath.Clean(modelRef)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", path)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}
	if info.IsDir() {
		return ResolvedModel{}, fmt.Errorf("custom model path %s is a directory", path)
	}

	return ResolvedModel{Path: path, IsCustomPath: true}, nil
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) || strings.HasSuffix(strings.ToLower(input), ".bin")
}
