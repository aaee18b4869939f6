// Package progress wraps the progress bar rendered while fetching and
// scanning repositories. A nil *Bar is valid and renders nothing, which is
// how verbose mode suppresses the bar without callers checking a flag.
package progress

import (
	"github.com/schollz/progressbar/v3"
)

type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar over max items, or nil when disabled.
func New(max int, description string, enabled bool) *Bar {
	if !enabled {
		return nil
	}
	return &Bar{bar: progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
