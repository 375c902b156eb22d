package audiocapture

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// ffmpegImpl captures the microphone through an ffmpeg subprocess emitting
// raw little-endian float32 mono on stdout. ffmpeg resamples whatever rate
// the device natively offers and applies noise suppression and level
// normalization in-process.
type ffmpegImpl struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	waitErr chan error
}

func newFFmpegImpl() captureImpl {
	return &ffmpegImpl{}
}

var backendAvailable = func() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// inputFormat selects the ffmpeg capture device format for the host OS.
func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":0"
	case "windows":
		return "audio=default"
	default:
		return "default"
	}
}

func (f *ffmpegImpl) start(sampleRate int, device string, callback func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd != nil {
		return ErrAlreadyCapturing
	}
	if device == "" {
		device = defaultDevice()
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", inputFormat(),
		"-i", device,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-af", "afftdn,dynaudnorm",
		"-f", "f32le",
		"-",
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	f.cmd = cmd
	f.stdout = stdout
	f.waitErr = waitErr

	go readSamples(stdout, sampleRate, callback)
	return nil
}

// readSamples converts the f32le byte stream into sample slices. Reads in
// quarter-second chunks to keep callback latency low.
func readSamples(r io.Reader, sampleRate int, callback func(samples []float32)) {
	buf := make([]byte, sampleRate) // sampleRate/4 samples * 4 bytes
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) / 4 * 4
			samples := make([]float32, whole/4)
			for i := range samples {
				bits := binary.LittleEndian.Uint32(data[i*4:])
				samples[i] = math.Float32frombits(bits)
			}
			carry = append([]byte(nil), data[whole:]...)
			if len(samples) > 0 {
				callback(samples)
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("capture stream ended", "error", err)
			}
			return
		}
	}
}

// stop interrupts ffmpeg and escalates to kill if it does not exit promptly.
// It does not wait for the reader goroutine; closing stdout unblocks it.
func (f *ffmpegImpl) stop() {
	f.mu.Lock()
	cmd := f.cmd
	stdout := f.stdout
	waitErr := f.waitErr
	f.cmd = nil
	f.stdout = nil
	f.waitErr = nil
	f.mu.Unlock()

	if cmd == nil {
		return
	}

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-waitErr:
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-waitErr
	}
	_ = stdout.Close()
}
