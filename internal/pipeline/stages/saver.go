package stages

import (
	"fmt"
	"os"
	"path/filepath"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/roi"
)

// Run directory layout, relative to <root>/<runID>.
const (
	FrameImageFile     = "imagen/imagen.jpg"
	FrameRecordFile    = "imagen/imagen.txt"
	CandidatesFile     = "imagen/imagen_contornos.jpg"
	RegionRecordFile   = "rdis/rdis.txt"
	ClassifiedFile     = "rdis/rdis_classified.txt"
	ResultImageFile    = "resultado/imagen_final.jpg"
	regionImagePattern = "rdis/rdi_%d.jpg"
)

// RegionImageFile is the path of region index's image. Files are numbered
// from 1.
func RegionImageFile(index int) string {
	return fmt.Sprintf(regionImagePattern, index+1)
}

// Saver writes the hand-off files of a run under its own directory.
type Saver struct {
	root string
	log  logger.Logger
}

func NewSaver(root string, log logger.Logger) *Saver {
	if log == nil {
		log = logger.Nop()
	}
	return &Saver{root: root, log: log}
}

func (s *Saver) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

func (s *Saver) SaveFrame(runID string, image []byte, rec roi.FrameRecord) error {
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("encode frame record: %w", err)
	}
	if err := s.write(runID, FrameImageFile, image); err != nil {
		return err
	}
	return s.write(runID, FrameRecordFile, data)
}

func (s *Saver) SaveCandidates(runID string, overlay []byte) error {
	return s.write(runID, CandidatesFile, overlay)
}

// SaveRegions writes the region record and every region image present in
// images, keyed by region index.
func (s *Saver) SaveRegions(runID string, store *roi.Store, images map[int][]byte) error {
	data, err := store.Serialize()
	if err != nil {
		return fmt.Errorf("encode region record: %w", err)
	}
	if err := s.write(runID, RegionRecordFile, data); err != nil {
		return err
	}
	for i, img := range images {
		if err := s.write(runID, RegionImageFile(i), img); err != nil {
			return err
		}
	}
	return nil
}

func (s *Saver) SaveClassified(runID string, store *roi.Store) error {
	data, err := store.ClassifiedRecord()
	if err != nil {
		return fmt.Errorf("encode classified record: %w", err)
	}
	return s.write(runID, ClassifiedFile, data)
}

// SaveResult writes the rendered frame and returns its path.
func (s *Saver) SaveResult(runID string, image []byte) (string, error) {
	if err := s.write(runID, ResultImageFile, image); err != nil {
		return "", err
	}
	return filepath.Join(s.RunDir(runID), filepath.FromSlash(ResultImageFile)), nil
}

func (s *Saver) write(runID, rel string, data []byte) error {
	path := filepath.Join(s.RunDir(runID), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.log.Debug("PipelineSaver", "file written", map[string]interface{}{
		"path":  path,
		"bytes": len(data),
	})
	return nil
}
