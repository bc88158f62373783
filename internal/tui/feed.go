package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/pulse/internal/timer"
	"github.com/sadopc/pulse/internal/tracker"
)

// feed carries tracker notifications into the program. Tracker callbacks run
// on whatever goroutine made the change and only do non-blocking sends; the
// program reads the channels from commands.
type feed struct {
	snapshots   chan tracker.Snapshot
	completions chan timer.Completion
	done        chan struct{}

	once   sync.Once
	unsubs []func()
}

func newFeed(tr *tracker.Tracker) *feed {
	f := &feed{
		snapshots:   make(chan tracker.Snapshot, 1),
		completions: make(chan timer.Completion, 8),
		done:        make(chan struct{}),
	}
	f.unsubs = append(f.unsubs,
		tr.Subscribe(f.pushSnapshot),
		tr.OnTimerComplete(f.pushCompletion),
	)
	return f
}

// pushSnapshot keeps only the newest snapshot.
func (f *feed) pushSnapshot(s tracker.Snapshot) {
	for {
		select {
		case f.snapshots <- s:
			return
		default:
		}
		select {
		case <-f.snapshots:
		default:
		}
	}
}

func (f *feed) pushCompletion(c timer.Completion) {
	select {
	case f.completions <- c:
	default:
	}
}

func (f *feed) waitSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-f.snapshots:
			return snapshotMsg(s)
		case <-f.done:
			return nil
		}
	}
}

func (f *feed) waitCompletion() tea.Cmd {
	return func() tea.Msg {
		select {
		case c := <-f.completions:
			return completionMsg(c)
		case <-f.done:
			return nil
		}
	}
}

func (f *feed) close() {
	f.once.Do(func() {
		for _, fn := range f.unsubs {
			fn()
		}
		close(f.done)
	})
}
