package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
	framesFile   = "frames.csv"
	sceneFile    = "scene.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Scene       string             `json:"scene"`
	Variant     string             `json:"variant,omitempty"`
	Dimension   int                `json:"dimension"`
	Timestamp   time.Time          `json:"timestamp"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Steps       int                `json:"steps"`
	Frames      int                `json:"frames"`
	Bodies      int                `json:"bodies"`
	Diagnostics int                `json:"diagnostics"`
	Metrics     map[string]float64 `json:"metrics"`
}

func NewMetadata(cfg *config.Config, result *sim.Result) RunMetadata {
	now := time.Now()
	return RunMetadata{
		ID:          fmt.Sprintf("%s_%d", cfg.Scene, now.UnixNano()),
		Scene:       cfg.Scene,
		Variant:     cfg.Variant,
		Dimension:   cfg.Dimension,
		Timestamp:   now,
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Steps:       result.StepsTaken,
		Frames:      len(result.Frames),
		Bodies:      len(cfg.Bodies),
		Diagnostics: len(result.Diagnostics),
		Metrics:     result.Metrics,
	}
}

// Save writes a run directory holding the metadata, the per-body states, the
// per-frame summaries and the scene that produced them.
func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	meta := NewMetadata(cfg, result)
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", err
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	for i := 1; ; i++ {
		err := os.Mkdir(runDir, 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", err
		}
		meta.ID = fmt.Sprintf("%s_%d_%d", cfg.Scene, meta.Timestamp.UnixNano(), i)
		runDir = filepath.Join(s.baseDir, meta.ID)
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := writeFile(filepath.Join(runDir, statesFile), result.Frames, ExportCSV); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, framesFile), result.Frames, ExportFramesCSV); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, sceneFile), cfg); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadScene returns the scene config stored with a run.
func (s *Store) LoadScene(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, sceneFile))
}

// LoadFrames rebuilds the sampled frames of a run. Joint states are not
// persisted.
func (s *Store) LoadFrames(runID string) ([]sim.Frame, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	frames, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}

	summary, err := os.Open(filepath.Join(s.baseDir, runID, framesFile))
	if os.IsNotExist(err) {
		return frames, nil
	}
	if err != nil {
		return nil, err
	}
	defer summary.Close()

	if err := ReadFramesCSV(summary, frames); err != nil {
		return nil, err
	}
	return frames, nil
}

func writeFile(path string, frames []sim.Frame, write func(io.Writer, []sim.Frame) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, frames); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
