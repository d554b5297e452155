package engine

import (
	"sync"
	"time"
)

// noticeBoard holds the pending checkout notice and the transient
// highlight set of affected line keys, auto-cleared after a TTL.
type noticeBoard struct {
	mu         sync.Mutex
	ttl        time.Duration
	notice     string
	highlights []string
	timer      *time.Timer
}

func newNoticeBoard(ttl time.Duration) *noticeBoard {
	return &noticeBoard{ttl: ttl}
}

func (nb *noticeBoard) set(notice string, highlights []string) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	nb.notice = notice
	nb.highlights = highlights
	if nb.timer != nil {
		nb.timer.Stop()
	}
	nb.timer = time.AfterFunc(nb.ttl, nb.clear)
}

func (nb *noticeBoard) clear() {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.notice = ""
	nb.highlights = nil
	nb.timer = nil
}

func (nb *noticeBoard) current() (string, []string) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.notice, append([]string(nil), nb.highlights...)
}
