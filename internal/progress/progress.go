// Package progress draws terminal progress bars for split and import runs.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Bar is a single progress bar. A nil *Bar is valid and does nothing, so
// callers can disable progress without branching.
type Bar struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	once sync.Once
}

func newProgress(w io.Writer) *mpb.Progress {
	return mpb.New(
		mpb.WithOutput(w),
		mpb.WithWidth(48),
		mpb.WithRefreshRate(150*time.Millisecond),
	)
}

// NewBytes returns a bar measuring bytes read. total may be 0 when the size
// is unknown (stdin); the bar is completed by Finish.
func NewBytes(w io.Writer, name string, total int64) *Bar {
	p := newProgress(w)
	bar := p.AddBar(total,
		mpb.BarStyle("|▇▇ |"),
		mpb.PrependDecorators(
			decor.Name(color.HiBlueString(name), decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), color.HiMagentaString(" done!")),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncWidth),
			decor.Name(" "),
			decor.AverageSpeed(decor.UnitKiB, "% .1f", decor.WCSyncWidth),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_MMSS),
		),
	)
	return &Bar{p: p, bar: bar}
}

// NewCounter returns a bar counting discrete items such as chunk files.
func NewCounter(w io.Writer, name string, total int64) *Bar {
	p := newProgress(w)
	bar := p.AddBar(total,
		mpb.BarStyle("|▇▇ |"),
		mpb.PrependDecorators(
			decor.Name(color.HiBlueString(name), decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), color.HiMagentaString(" done!")),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("( "+color.HiCyanString("%d/%d")+", ", decor.WCSyncWidth),
			decor.AverageSpeed(-1, " "+color.HiGreenString("%.2f/s")+" ) ", decor.WCSyncWidth),
			decor.AverageETA(decor.ET_STYLE_MMSS),
		),
	)
	return &Bar{p: p, bar: bar}
}

// Set moves the bar to an absolute position.
func (b *Bar) Set(current int64) {
	if b == nil {
		return
	}
	b.bar.SetCurrent(current)
}

// Increment advances the bar by one.
func (b *Bar) Increment() {
	if b == nil {
		return
	}
	b.bar.Increment()
}

// Finish completes the bar at its current position and waits for the final
// render. It is safe to call more than once.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		b.bar.SetTotal(b.bar.Current(), true)
		b.p.Wait()
	})
}

// Abort stops the bar without completing it, leaving the last frame visible.
func (b *Bar) Abort() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		b.bar.Abort(false)
		b.p.Wait()
	})
}
