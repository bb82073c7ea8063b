package convsync

import (
	"time"

	"thinkshare/internal/models"
)

// Effective ages a reported presence. Busy survives until OfflineAfter; offline is final.
func (p PresencePolicy) Effective(pr Presence, now time.Time) Presence {
	if pr.Status == models.PresenceOffline {
		return pr
	}
	age := now.Sub(pr.LastSeen)
	switch {
	case p.OfflineAfter > 0 && age >= p.OfflineAfter:
		pr.Status = models.PresenceOffline
	case p.AwayAfter > 0 && age >= p.AwayAfter && pr.Status == models.PresenceOnline:
		pr.Status = models.PresenceAway
	}
	return pr
}

func (s *Synchronizer) applyPresence(event models.Event) {
	if event.AccountID == "" {
		return
	}
	seen := s.opts.now()
	if event.LastSeen != nil {
		seen = *event.LastSeen
	}
	status := event.Status
	if status == "" {
		status = models.PresenceOnline
	}

	s.mu.Lock()
	s.presence[event.AccountID] = Presence{AccountID: event.AccountID, Status: status, LastSeen: seen}
	s.mu.Unlock()
	s.notify()
}
