package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyberinferno/camingest/tenant"
)

// Detection is one object found in an image.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Detector finds objects in an image file.
type Detector interface {
	Detect(ctx context.Context, imagePath string, settings tenant.Detection) ([]Detection, error)
}

// HTTPDetector posts images to an inference service. The service receives a
// multipart form with an "image" file and a "settings" JSON field, and
// answers with a JSON array of detections.
type HTTPDetector struct {
	url    string
	client *http.Client
}

// NewHTTPDetector creates a detector for the inference endpoint url.
func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPDetector{url: url, client: &http.Client{Timeout: timeout}}
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, imagePath string, settings tenant.Detection) ([]Detection, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("settings", string(settingsJSON)); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var detections []Detection
	if err := json.NewDecoder(resp.Body).Decode(&detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	return detections, nil
}

// NopDetector never finds anything.
type NopDetector struct{}

// Detect implements Detector.
func (NopDetector) Detect(context.Context, string, tenant.Detection) ([]Detection, error) {
	return nil, nil
}

// detectionClasses groups detector labels into the classes a tenant can
// enable, in caption order.
var detectionClasses = []struct {
	name   string
	labels []string
}{
	{name: "person", labels: []string{"person"}},
	{name: "vehicle", labels: []string{"car", "truck", "bus", "vehicle"}},
	{name: "animal", labels: []string{"cow", "sheep", "horse", "dog", "cat", "animal"}},
}

func classEnabled(name string, s tenant.Detection) (bool, float64) {
	switch name {
	case "person":
		return s.Person, s.PersonMinConf
	case "vehicle":
		return s.Vehicle, s.VehicleMinConf
	case "animal":
		return s.Animal, s.AnimalMinConf
	}

	return false, 0
}

// Classify returns the enabled classes with at least one detection above
// the class threshold, in caption order.
func Classify(detections []Detection, s tenant.Detection) []string {
	var found []string
	for _, class := range detectionClasses {
		enabled, threshold := classEnabled(class.name, s)
		if !enabled {
			continue
		}

	search:
		for _, d := range detections {
			if d.Confidence <= threshold {
				continue
			}
			for _, label := range class.labels {
				if d.Label == label {
					found = append(found, class.name)
					break search
				}
			}
		}
	}

	return found
}
