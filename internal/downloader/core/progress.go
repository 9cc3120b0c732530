package core

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressReporter receives download progress updates.
// Implementations must be safe for concurrent use by several workers.
type ProgressReporter interface {
	OnStart(fileName string, totalSize int64)
	OnProgress(fileName string, current, total int64, speed float64)
	OnComplete(fileName string, totalSize int64, elapsed time.Duration)
}

// NoopProgressReporter discards all progress events.
type NoopProgressReporter struct{}

func (n *NoopProgressReporter) OnStart(string, int64)                    {}
func (n *NoopProgressReporter) OnProgress(string, int64, int64, float64) {}
func (n *NoopProgressReporter) OnComplete(string, int64, time.Duration)  {}

// BarProgressReporter renders one progress bar per active download.
// Bars share a writer, so it is meant for sequential downloads on a terminal.
type BarProgressReporter struct {
	mu     sync.Mutex
	writer io.Writer
	bars   map[string]*progressbar.ProgressBar
}

// NewBarProgressReporter constructs a BarProgressReporter (defaults to stderr).
func NewBarProgressReporter(w io.Writer) *BarProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgressReporter{
		writer: w,
		bars:   make(map[string]*progressbar.ProgressBar),
	}
}

func (b *BarProgressReporter) OnStart(fileName string, totalSize int64) {
	if totalSize <= 0 {
		totalSize = -1
	}
	bar := progressbar.NewOptions64(totalSize,
		progressbar.OptionSetWriter(b.writer),
		progressbar.OptionSetDescription("   "+fileName),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)

	b.mu.Lock()
	b.bars[fileName] = bar
	b.mu.Unlock()
}

func (b *BarProgressReporter) OnProgress(fileName string, current, _ int64, _ float64) {
	b.mu.Lock()
	bar := b.bars[fileName]
	b.mu.Unlock()
	if bar != nil {
		_ = bar.Set64(current)
	}
}

func (b *BarProgressReporter) OnComplete(fileName string, _ int64, _ time.Duration) {
	b.mu.Lock()
	bar := b.bars[fileName]
	delete(b.bars, fileName)
	b.mu.Unlock()
	if bar != nil {
		_ = bar.Finish()
	}
}

// ProgressReader wraps a reader to emit progress updates.
type ProgressReader struct {
	reader    io.Reader
	total     int64
	current   int64
	reporter  ProgressReporter
	fileName  string
	startTime time.Time
}

// NewProgressReader constructs a progress tracking reader.
func NewProgressReader(reader io.Reader, total int64, reporter ProgressReporter, fileName string) *ProgressReader {
	if reporter == nil {
		reporter = &NoopProgressReporter{}
	}

	pr := &ProgressReader{
		reader:    reader,
		total:     total,
		reporter:  reporter,
		fileName:  fileName,
		startTime: time.Now(),
	}

	reporter.OnStart(fileName, total)

	return pr
}

// Read implements io.Reader and relays progress.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		elapsed := time.Since(pr.startTime).Seconds()
		if elapsed <= 0 {
			elapsed = 0.001
		}
		speed := float64(pr.current) / elapsed / 1024 / 1024
		pr.reporter.OnProgress(pr.fileName, pr.current, pr.total, speed)
	}
	return n, err
}

// Finish notifies the reporter that the download has completed.
func (pr *ProgressReader) Finish() {
	pr.reporter.OnComplete(pr.fileName, pr.current, time.Since(pr.startTime))
}
