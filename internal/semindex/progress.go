package semindex

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressReporter receives build progress, one increment per embedded
// record.
type ProgressReporter interface {
	Start(total int)
	Increment()
	Finish()
}

// BuildProgress renders an embedding progress bar on stderr.
type BuildProgress struct {
	bar *progressbar.ProgressBar
}

// NewBuildProgress returns a progress reporter, or nil when disabled.
func NewBuildProgress(enabled bool) ProgressReporter {
	if !enabled {
		return nil
	}
	return &BuildProgress{}
}

func (p *BuildProgress) Start(total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("embedding"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *BuildProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *BuildProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// DefaultProgressEnabled reports whether stderr is a terminal.
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
