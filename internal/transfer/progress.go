package transfer

import (
	"bytes"
	"io"
	"sync"
)

// fileProgress tracks per-part transferred bytes for one file and
// publishes the monotonic total. A part that restarts (our retry, or
// an SDK re-read after a transport hiccup) resets its own counter
// without ever regressing the published total.
type fileProgress struct {
	mu        sync.Mutex
	base      int64 // bytes covered by parts skipped at planning time
	parts     map[int32]int64
	published int64
	notify    ProgressFunc
}

func newFileProgress(base int64, notify ProgressFunc) *fileProgress {
	fp := &fileProgress{base: base, parts: make(map[int32]int64), notify: notify}
	fp.publishLocked()
	return fp
}

func (fp *fileProgress) add(part int32, n int64) {
	fp.mu.Lock()
	fp.parts[part] += n
	fp.publishLocked()
	fp.mu.Unlock()
}

func (fp *fileProgress) reset(part int32) {
	fp.mu.Lock()
	fp.parts[part] = 0
	fp.mu.Unlock()
}

// publishLocked reports the current total if it increased. Callers
// hold fp.mu.
func (fp *fileProgress) publishLocked() {
	total := fp.base
	for _, n := range fp.parts {
		total += n
	}
	if total > fp.published {
		fp.published = total
		if fp.notify != nil {
			fp.notify(total)
		}
	}
}

// progressReader counts bytes as they are read from the underlying
// section and feeds them to the file's progress tracker.
type progressReader struct {
	r    io.Reader
	part int32
	fp   *fileProgress
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.fp != nil {
		pr.fp.add(pr.part, int64(n))
	}
	return n, err
}

// byteReader is a seekable reader over an in-memory buffer, satisfying
// the SDK's desire to rewind bodies on retry.
func newByteReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
