package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.started
	loc := s.loc
	s.mu.Unlock()

	snap := Snapshot{
		Running:  running,
		Timezone: loc.String(),
		Jobs:     s.ListJobs(),
	}
	if s.engine != nil {
		snap.Engine = s.engine.Snapshot()
	}
	return snap
}
