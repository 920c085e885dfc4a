package management

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"regexp"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
)

const (
	ThreadNew          = "NEW"
	ThreadRunnable     = "RUNNABLE"
	ThreadBlocked      = "BLOCKED"
	ThreadWaiting      = "WAITING"
	ThreadTimedWaiting = "TIMED_WAITING"
	ThreadTerminated   = "TERMINATED"
)

var goroutineHeader = regexp.MustCompile(`^goroutine (\d+)(?: [^\[]*)? \[([^\]]*)\]:$`)

func (h *handlers) threadDump(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 2); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	threads, err := ParseGoroutineDump(&buf)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ThreadDump{Threads: threads})
}

// ParseGoroutineDump reads a debug=2 goroutine profile and returns one thread
// per goroutine, ordered by id. Frames below "created by" are not included.
func ParseGoroutineDump(r io.Reader) ([]Thread, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		threads []Thread
		cur     *Thread
		pending *StackFrame
		done    bool
	)
	flush := func() {
		if cur == nil {
			return
		}
		if n := len(cur.StackTrace); n > 0 {
			bottom := cur.StackTrace[n-1]
			cur.ThreadName = shortName(bottom.ClassName) + "." + bottom.MethodName
		} else {
			cur.ThreadName = "goroutine-" + strconv.FormatInt(cur.ThreadID, 10)
		}
		if cur.StackTrace == nil {
			cur.StackTrace = []StackFrame{}
		}
		threads = append(threads, *cur)
		cur, pending, done = nil, nil, false
	}

	for sc.Scan() {
		line := sc.Text()
		if m := goroutineHeader.FindStringSubmatch(line); m != nil {
			flush()
			id, _ := strconv.ParseInt(m[1], 10, 64)
			cur = &Thread{ThreadID: id, Daemon: id != 1, Priority: 5}
			applyWaitReason(cur, m[2])
			continue
		}
		if cur == nil || done {
			continue
		}
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "\t"):
			if pending != nil {
				file, ln := splitLocation(strings.TrimSpace(line))
				pending.FileName = &file
				pending.LineNumber = &ln
				cur.StackTrace = append(cur.StackTrace, *pending)
				pending = nil
			}
		case strings.HasPrefix(line, "created by "):
			done = true
		case strings.HasPrefix(line, "..."):
		default:
			class, method := splitFunc(line)
			pending = &StackFrame{ClassName: class, MethodName: method}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	sort.Slice(threads, func(i, j int) bool { return threads[i].ThreadID < threads[j].ThreadID })
	return threads, nil
}

// applyWaitReason maps the bracketed header, e.g. "chan receive, 3 minutes,
// locked to thread", onto thread state fields.
func applyWaitReason(t *Thread, header string) {
	parts := strings.Split(header, ", ")
	reason := parts[0]
	t.WaitReason = reason
	for _, p := range parts[1:] {
		switch {
		case strings.HasSuffix(p, " minutes"):
			t.WaitedMinutes, _ = strconv.Atoi(strings.TrimSuffix(p, " minutes"))
		case p == "locked to thread":
			t.InNative = true
		}
	}
	t.ThreadState = threadState(reason)
	switch t.ThreadState {
	case ThreadBlocked:
		t.BlockedCount = 1
		t.BlockedTime = int64(t.WaitedMinutes) * 60_000
	case ThreadWaiting, ThreadTimedWaiting:
		t.WaitedCount = 1
		t.WaitedTime = int64(t.WaitedMinutes) * 60_000
	}
	if reason == "syscall" {
		t.InNative = true
	}
}

func threadState(reason string) string {
	switch {
	case reason == "running", reason == "runnable", reason == "syscall":
		return ThreadRunnable
	case reason == "sleep":
		return ThreadTimedWaiting
	case reason == "dead":
		return ThreadTerminated
	case reason == "idle":
		return ThreadNew
	case strings.HasPrefix(reason, "semacquire"),
		strings.HasPrefix(reason, "sync.Mutex"),
		strings.HasPrefix(reason, "sync.RWMutex"):
		return ThreadBlocked
	default:
		return ThreadWaiting
	}
}

// splitFunc splits "pkg/path.(*T).method(0x1, 0x2)" into the receiver-qualified
// package part and the method name.
func splitFunc(line string) (string, string) {
	fn := strings.TrimSpace(line)
	if strings.HasSuffix(fn, ")") {
		if i := strings.LastIndex(fn, "("); i > 0 {
			fn = fn[:i]
		}
	}
	start := strings.LastIndex(fn, "/") + 1
	if i := strings.LastIndex(fn[start:], "."); i >= 0 {
		return fn[:start+i], fn[start+i+1:]
	}
	return fn, ""
}

// splitLocation parses "/src/x.go:42 +0x55".
func splitLocation(loc string) (string, int) {
	if i := strings.Index(loc, " +0x"); i >= 0 {
		loc = loc[:i]
	}
	i := strings.LastIndex(loc, ":")
	if i < 0 {
		return loc, 0
	}
	n, err := strconv.Atoi(loc[i+1:])
	if err != nil {
		return loc, 0
	}
	return loc[:i], n
}

func shortName(class string) string {
	return class[strings.LastIndex(class, "/")+1:]
}
