package landmark

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetConfig holds detector configuration.
type YuNetConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum detection score (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultYuNetConfig returns production defaults for YuNet.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNetDetector uses OpenCV's FaceDetectorYN to produce FaceObservations.
//
// YuNet emits a face box plus five landmarks (eyes, nose tip, mouth
// corners). Iris centers come from the eye landmarks; eye regions, chin
// and forehead are derived from the face box geometry. Openness is not
// measurable from five points, so confidence is the detection score.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	mu       sync.Mutex // Protects inference
	lastTs   int64
}

// NewYuNet creates a YuNet-backed detector using GoCV's FaceDetectorYN.
func NewYuNet(cfg YuNetConfig) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// rawFace is one row of YuNet output, normalized to 0-1 frame coordinates.
type rawFace struct {
	box        Box
	rightEye   Point
	leftEye    Point
	nose       Point
	confidence float64
}

func (f rawFace) area() float64 { return f.box.Width() * f.box.Height() }

// Detect finds the dominant face in the JPEG image.
func (d *YuNetDetector) Detect(jpeg []byte, timestampMs int64) (*FaceObservation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timestampMs <= d.lastTs {
		return nil, fmt.Errorf("timestamp %d not after previous %d", timestampMs, d.lastTs)
	}
	d.lastTs = timestampMs

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var raws []rawFace
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs): right eye, left eye,
		//       nose tip, right mouth corner, left mouth corner
		// 14: face score
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))

		raws = append(raws, rawFace{
			box: Box{
				MinX: x / imgW, MinY: y / imgH,
				MaxX: (x + w) / imgW, MaxY: (y + h) / imgH,
			},
			rightEye:   Point{X: float64(faces.GetFloatAt(r, 4)) / imgW, Y: float64(faces.GetFloatAt(r, 5)) / imgH},
			leftEye:    Point{X: float64(faces.GetFloatAt(r, 6)) / imgW, Y: float64(faces.GetFloatAt(r, 7)) / imgH},
			nose:       Point{X: float64(faces.GetFloatAt(r, 8)) / imgW, Y: float64(faces.GetFloatAt(r, 9)) / imgH},
			confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	best := selectBest(raws)
	if best == nil {
		return nil, nil
	}

	return observationFromRaw(*best), nil
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// selectBest picks the dominant face from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3.
func selectBest(faces []rawFace) *rawFace {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.area() > maxArea {
			maxArea = f.area()
		}
	}

	bestScore := -1.0
	var best *rawFace
	for i := range faces {
		score := faces[i].confidence*0.7 + (faces[i].area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}

// Eye region proportions relative to the face box. YuNet gives eye centers
// but not corners; a fixed fraction of the face box is a stable stand-in
// because the box tracks head scale.
const (
	eyeBoxWidthFrac  = 0.22
	eyeBoxHeightFrac = 0.10
)

func observationFromRaw(f rawFace) *FaceObservation {
	faceW := f.box.Width()
	faceH := f.box.Height()

	eyeBox := func(center Point) Box {
		hw := faceW * eyeBoxWidthFrac / 2
		hh := faceH * eyeBoxHeightFrac / 2
		return Box{
			MinX: center.X - hw, MinY: center.Y - hh,
			MaxX: center.X + hw, MaxY: center.Y + hh,
		}
	}

	cx := f.box.MinX + faceW/2

	return &FaceObservation{
		LeftIris:  f.leftEye,
		RightIris: f.rightEye,
		LeftEye:   eyeBox(f.leftEye),
		RightEye:  eyeBox(f.rightEye),
		Nose:      f.nose,
		Chin:      Point{X: cx, Y: f.box.MaxY},
		Forehead:  Point{X: cx, Y: f.box.MinY},
		// Openness is not observable from five landmarks; report the
		// full-open ratio so confidence reduces to the detection score.
		LeftOpenness:  fullOpenRatio,
		RightOpenness: fullOpenRatio,
		Confidence:    f.confidence,
	}
}
