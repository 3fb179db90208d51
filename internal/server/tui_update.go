// ABOUTME: TUI update helpers for server
// ABOUTME: Builds status snapshots and pushes them to the TUI
package server

import "time"

// status snapshots the server for display
func (s *Server) status() ServerStatus {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	sessions := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, SessionInfo{
			ID:         session.ID,
			RemoteAddr: session.RemoteAddr,
			Age:        time.Since(session.Started),
		})
	}

	return ServerStatus{
		Name:     s.config.Name,
		Port:     s.config.Port,
		Skew:     s.config.Skew,
		MDNS:     s.config.EnableMDNS,
		Requests: s.requests.Load(),
		Sessions: sessions,
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.tui == nil || s.isShutdown {
		return
	}

	s.tui.Update(s.status())
}
