package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	tz := s.cfg.Timezone
	if tz == "" {
		tz = loc.String()
	}
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.sup != nil,
		Timezone: tz,
		Started:  s.started,
		Tasks:    make([]TaskInfo, 0, len(s.tasks)),
	}
	for _, e := range s.tasks {
		it := TaskInfo{
			Name:    e.reg.Name,
			Target:  e.reg.Target,
			Trigger: e.reg.Trigger,
			Next:    e.next,
			Running: e.running,
		}
		if e.last != nil {
			last := *e.last
			it.Last = &last
		}
		snap.Tasks = append(snap.Tasks, it)
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].Name < snap.Tasks[j].Name })
	return snap
}

// Task returns one task's info.
func (s *Service) Task(name string) (TaskInfo, error) {
	for _, it := range s.Snapshot().Tasks {
		if it.Name == name {
			return it, nil
		}
	}
	return TaskInfo{}, ErrNotFound
}
