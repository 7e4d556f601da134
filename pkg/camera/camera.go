// Package camera provides webcam frame capture for the gaze pipeline.
package camera

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/internal/log"
)

// Source supplies the latest captured frame without waiting for I/O.
// The pipeline goroutine is the sole consumer.
type Source interface {
	// Frame returns the most recent JPEG frame and its capture time.
	// ok is false until the first frame has been captured.
	Frame() (jpeg []byte, captured time.Time, ok bool)

	// Close stops capture and releases the device.
	Close() error
}

// Config holds capture parameters applied at open time.
type Config struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// DefaultConfig returns the recommended capture configuration. 640x480
// keeps detection latency low while leaving plenty of pixels for the
// face box.
func DefaultConfig() Config {
	return Config{Width: 640, Height: 480, FPS: 30}
}

// Webcam grabs frames from a local camera in a background goroutine so
// the pipeline never blocks on device I/O.
type Webcam struct {
	cap *gocv.VideoCapture

	mu       sync.Mutex
	frame    []byte
	captured time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// Open starts capturing from the camera at the given device index with
// the default configuration.
func Open(index int) (*Webcam, error) {
	return OpenWith(index, DefaultConfig())
}

// OpenWith starts capturing with explicit capture parameters.
func OpenWith(index int, cfg Config) (*Webcam, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	w := &Webcam{
		cap:  cap,
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.captureLoop()

	log.Info("camera started",
		"index", index,
		"width", int(cap.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(cap.Get(gocv.VideoCaptureFrameHeight)))
	return w, nil
}

// Frame returns the most recent JPEG frame and its capture time.
func (w *Webcam) Frame() ([]byte, time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frame == nil {
		return nil, time.Time{}, false
	}
	return w.frame, w.captured, true
}

// Close stops the capture goroutine and releases the device.
func (w *Webcam) Close() error {
	close(w.done)
	w.wg.Wait()
	err := w.cap.Close()
	log.Info("camera stopped")
	return err
}

func (w *Webcam) captureLoop() {
	defer w.wg.Done()

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		if ok := w.cap.Read(&img); !ok || img.Empty() {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			log.Warn("jpeg encode failed", "error", err)
			continue
		}
		jpeg := make([]byte, len(buf.GetBytes()))
		copy(jpeg, buf.GetBytes())
		buf.Close()

		w.mu.Lock()
		w.frame = jpeg
		w.captured = time.Now()
		w.mu.Unlock()
	}
}
