package audiocapture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// ffmpegSource reads microphone PCM from an ffmpeg child process as s16le
// and converts it to float32 samples for the callback.
type ffmpegSource struct {
	command     string
	inputFormat string
	inputDevice string

	mu      sync.Mutex
	process *os.Process
	stdout  io.ReadCloser
	waitErr <-chan error
	done    chan struct{}
}

func newFFmpegSource(cfg Config) *ffmpegSource {
	command := cfg.Command
	if command == "" {
		command = "ffmpeg"
	}
	format := cfg.InputFormat
	if format == "" {
		format = defaultInputFormat()
	}
	device := cfg.InputDevice
	if device == "" {
		device = defaultInputDevice()
	}
	return &ffmpegSource{command: command, inputFormat: format, inputDevice: device}
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultInputDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":0"
	default:
		return "default"
	}
}

func (f *ffmpegSource) start(sampleRate int, callback func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", f.inputFormat,
		"-i", f.inputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(f.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", f.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give ffmpeg a moment to fail fast on a bad device.
	select {
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	f.process = cmd.Process
	f.stdout = stdout
	f.waitErr = waitErr
	f.done = make(chan struct{})

	go f.pump(stdout, callback, f.done)
	return nil
}

// pump converts the s16le byte stream into float32 chunks.
func (f *ffmpegSource) pump(r io.Reader, callback func(samples []float32), done chan struct{}) {
	defer close(done)

	const chunkBytes = 4096
	buf := make([]byte, chunkBytes)
	leftover := 0

	for {
		n, err := r.Read(buf[leftover:])
		n += leftover
		whole := n &^ 1 // full 16-bit frames only

		if whole > 0 {
			samples := make([]float32, whole/2)
			for i := range samples {
				v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
				samples[i] = float32(v) / 32768
			}
			callback(samples)
		}

		leftover = n - whole
		if leftover > 0 {
			buf[0] = buf[whole]
		}
		if err != nil {
			return
		}
	}
}

func (f *ffmpegSource) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.process == nil {
		return nil
	}

	_ = f.process.Signal(os.Interrupt)
	select {
	case <-f.waitErr:
	case <-time.After(1200 * time.Millisecond):
		_ = f.process.Kill()
		<-f.waitErr
	}
	err := f.stdout.Close()
	<-f.done

	f.process = nil
	f.stdout = nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
