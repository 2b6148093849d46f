package ai

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"sras/internal/dto"
	"sras/internal/logger"

	"gocv.io/x/gocv"
)

// DetectorService wraps one OpenCV DNN model with SSD-style output
// ([batch_id, class_id, confidence, x1, y1, x2, y2] rows, coordinates
// normalized to the input).
type DetectorService struct {
	name       string
	net        gocv.Net
	ready      bool
	labels     []string
	inputSize  image.Point
	modelPath  string
	configPath string
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetectorService loads the model and its labels file. A model that cannot
// be loaded is logged and every Detect call then fails, so the server still
// comes up and streams the raw feed.
func NewDetectorService(name, modelPath, configPath, labelsPath string, inputSize image.Point, logger *logger.Logger) *DetectorService {
	service := &DetectorService{
		name:       name,
		inputSize:  inputSize,
		modelPath:  modelPath,
		configPath: configPath,
		logger:     logger,
	}

	labels, err := LoadLabels(labelsPath)
	if err != nil {
		service.logger.Warning("Could not load %s labels: %v", name, err)
	}
	service.labels = labels

	if err := service.initializeNet(); err != nil {
		service.logger.Warning("Could not initialize %s detection network: %v", name, err)
		return service
	}

	return service
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	if s.configPath != "" {
		if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.configPath)
		}
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.ready = true
	s.logger.Info("%s detection network initialized successfully", s.name)
	return nil
}

// Detect runs the network on img and returns the detections at or above
// confidence, with boxes in img's pixel coordinates.
func (s *DetectorService) Detect(img image.Image, confidence float64) ([]dto.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, fmt.Errorf("%s detection network not initialized", s.name)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, s.inputSize, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	bounds := img.Bounds()
	cols, height := float32(bounds.Dx()), float32(bounds.Dy())

	var results []dto.Detection
	for i := 0; i < rows.Rows(); i++ {
		score := rows.GetFloatAt(i, 2)
		if float64(score) < confidence {
			continue
		}

		box := image.Rect(
			int(rows.GetFloatAt(i, 3)*cols),
			int(rows.GetFloatAt(i, 4)*height),
			int(rows.GetFloatAt(i, 5)*cols),
			int(rows.GetFloatAt(i, 6)*height),
		).Add(bounds.Min).Intersect(bounds)
		if box.Empty() {
			continue
		}

		results = append(results, dto.Detection{
			Label:      s.classLabel(int(rows.GetFloatAt(i, 1))),
			Confidence: float64(score),
			Box:        box,
		})
	}

	return results, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false
	return s.net.Close()
}

// classLabel maps model class IDs to the labels file, one label per line.
func (s *DetectorService) classLabel(classID int) string {
	if classID >= 0 && classID < len(s.labels) {
		return s.labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// LoadLabels reads a labels file with one label per line. Blank lines keep
// their index so ids stay aligned with the model.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	return labels, nil
}
