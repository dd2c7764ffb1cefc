package mailbox

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agentvault/runtime/internal/logging"
)

// Watcher watches an agent's inbox file for writes so a waiting Collect
// loop can wake early instead of riding out its next poll tick, grounded
// on the teacher's vcs.Watcher (watching .git/HEAD for branch changes;
// here watching inbox.json for new messages).
type Watcher struct {
	watcher  *fsnotify.Watcher
	agentDir string
	notifyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher creates a Watcher on agentDir's inbox. The directory is
// created if it doesn't yet exist, since an agent that has never
// received a message has no inbox.json yet.
func NewWatcher(agentDir string) (*Watcher, error) {
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory rather than the file directly: saveInbox
	// writes via a temp-file rename, which on most filesystems drops
	// the watch on the original inode.
	if err := w.Add(agentDir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		agentDir: agentDir,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Safe to call at most once.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	target := inboxPath(w.agentDir)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.notify()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Str("agentDir", w.agentDir).Msg("mailbox watcher error")
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
		// A pending notification already covers this wake-up.
	}
}

// Changed returns the channel a caller can select on to wake as soon as
// the inbox changes. It never blocks the watcher: at most one pending
// notification is buffered, so bursts of writes collapse to one wake-up.
func (w *Watcher) Changed() <-chan struct{} {
	return w.notifyCh
}

// Stop stops the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
