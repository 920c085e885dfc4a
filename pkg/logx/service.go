package logx

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ---- Service (dynamic config + sinks + level overrides) ----

type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	file *os.File

	// guarded by lmu
	lmu       sync.RWMutex
	rootLevel zerolog.Level
	overrides map[string]zerolog.Level
	known     map[string]struct{}
}

// LoggerLevel is one row of the loggers listing.
//
// Configured is nil when the logger inherits its level.
type LoggerLevel struct {
	Name       string
	Configured *Level
	Effective  Level
}

// New creates the logging service, applies the initial config immediately,
// and returns both the Service and a root Logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()

	s := &Service{
		overrides: map[string]zerolog.Level{},
		known:     map[string]struct{}{},
	}

	// Safe bootstrap root.
	s.root.Store(zerolog.New(newConsoleWriter(Stdout())).Level(zerolog.TraceLevel).With().Timestamp().Logger())

	s.Apply(cfg)

	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps logger outputs/levels at runtime.
// Per-name overrides are replaced by cfg.Levels; runtime changes made via
// SetLevel do not survive a config reload.
// It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg

	// Close previous file (if any).
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./taskbeat.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.ErrorMirror.Enabled && !cfg.Console {
		rps := max(1, cfg.ErrorMirror.RatePerSec)
		writers = append(writers, &errorMirror{
			out:     newConsoleWriter(Stderr()),
			limiter: rate.NewLimiter(rate.Limit(rps), rps),
		})
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	// Level filtering happens in Logger.log (per-name), so the zerolog root passes everything.
	mw := zerolog.MultiLevelWriter(writers...)
	zl := zerolog.New(mw).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	s.root.Store(zl)

	overrides := make(map[string]zerolog.Level, len(cfg.Levels))
	for name, raw := range cfg.Levels {
		name = strings.TrimSpace(name)
		lvl, ok := ParseLevel(raw)
		if name == "" || !ok {
			fmt.Fprintf(os.Stderr, "logx: ignoring invalid level %q for logger %q\n", raw, name)
			continue
		}
		overrides[name] = lvl
	}

	s.lmu.Lock()
	s.rootLevel = parseLevel(cfg.Level, zerolog.InfoLevel)
	s.overrides = overrides
	for name := range overrides {
		if name != RootName {
			s.known[name] = struct{}{}
		}
	}
	if lvl, ok := overrides[RootName]; ok {
		s.rootLevel = lvl
		delete(s.overrides, RootName)
	}
	s.lmu.Unlock()
}

func (s *Service) register(name string) {
	s.lmu.RLock()
	_, ok := s.known[name]
	s.lmu.RUnlock()
	if ok {
		return
	}
	s.lmu.Lock()
	s.known[name] = struct{}{}
	s.lmu.Unlock()
}

// EffectiveLevel resolves the level for a dotted logger name: the closest
// configured ancestor wins, falling back to the root level.
func (s *Service) EffectiveLevel(name string) Level {
	s.lmu.RLock()
	defer s.lmu.RUnlock()
	return s.effectiveLocked(name)
}

func (s *Service) effectiveLocked(name string) Level {
	for n := strings.TrimSpace(name); n != "" && n != RootName; {
		if lvl, ok := s.overrides[n]; ok {
			return lvl
		}
		i := strings.LastIndexByte(n, '.')
		if i < 0 {
			break
		}
		n = n[:i]
	}
	return s.rootLevel
}

// SetLevel changes the configured level of a logger at runtime.
// An empty level clears the override (the logger inherits again); for ROOT it
// restores the level from config.
func (s *Service) SetLevel(name, level string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("logger name required")
	}
	level = strings.TrimSpace(level)

	var lvl zerolog.Level
	if level != "" {
		var ok bool
		lvl, ok = ParseLevel(level)
		if !ok {
			return fmt.Errorf("invalid level %q (supported: %s)", level, strings.Join(SupportedLevels(), ", "))
		}
	}

	s.mu.Lock()
	cfgLevel := s.cfg.Level
	s.mu.Unlock()

	s.lmu.Lock()
	defer s.lmu.Unlock()
	if strings.EqualFold(name, RootName) {
		if level == "" {
			s.rootLevel = parseLevel(cfgLevel, zerolog.InfoLevel)
		} else {
			s.rootLevel = lvl
		}
		return nil
	}
	s.known[name] = struct{}{}
	if level == "" {
		delete(s.overrides, name)
		return nil
	}
	s.overrides[name] = lvl
	return nil
}

// Loggers lists ROOT plus every logger that was created or configured, sorted by name.
func (s *Service) Loggers() []LoggerLevel {
	s.lmu.RLock()
	defer s.lmu.RUnlock()

	rootLvl := s.rootLevel
	out := []LoggerLevel{{Name: RootName, Configured: &rootLvl, Effective: rootLvl}}

	names := make([]string, 0, len(s.known))
	for n := range s.known {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, s.levelRowLocked(n))
	}
	return out
}

// Lookup returns the level row for one logger. ok is false for unknown names.
func (s *Service) Lookup(name string) (LoggerLevel, bool) {
	name = strings.TrimSpace(name)
	s.lmu.RLock()
	defer s.lmu.RUnlock()
	if strings.EqualFold(name, RootName) {
		lvl := s.rootLevel
		return LoggerLevel{Name: RootName, Configured: &lvl, Effective: lvl}, true
	}
	if _, ok := s.known[name]; !ok {
		return LoggerLevel{}, false
	}
	return s.levelRowLocked(name), true
}

func (s *Service) levelRowLocked(name string) LoggerLevel {
	row := LoggerLevel{Name: name, Effective: s.effectiveLocked(name)}
	if lvl, ok := s.overrides[name]; ok {
		v := lvl
		row.Configured = &v
	}
	return row
}

// ---- Error mirror (zerolog sink) ----

type errorMirror struct {
	out     io.Writer
	limiter *rate.Limiter
}

func (w *errorMirror) Write(p []byte) (int, error) {
	// Unleveled writes are not mirrored.
	return len(p), nil
}

func (w *errorMirror) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return len(p), nil
	}
	// Never block or fail core logging.
	if !w.limiter.Allow() {
		return len(p), nil
	}
	_, _ = w.out.Write(p)
	return len(p), nil
}
