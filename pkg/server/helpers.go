package server

import "sync"

// getSaveMutex returns the save mutex for a room, creating it on
// first use. Serializing saves per room keeps snapshots from
// interleaving when async saves pile up.
func (s *Server) getSaveMutex(roomID string) *sync.Mutex {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	mu, ok := s.saveMutexes[roomID]
	if !ok {
		mu = &sync.Mutex{}
		s.saveMutexes[roomID] = mu
	}
	return mu
}

// saveRoomState snapshots a room and writes it to the database. A
// room that has been removed in the meantime is not an error.
func (s *Server) saveRoomState(roomID, reason string) error {
	room := s.getRoom(roomID)
	if room == nil {
		return nil
	}

	mu := s.getSaveMutex(roomID)
	mu.Lock()
	defer mu.Unlock()

	state := room.GetStateSnapshot()
	if err := s.db.SaveRoom(&state); err != nil {
		return err
	}
	s.log.Tracef("saved room %s (%s)", roomID, reason)
	return nil
}

// saveRoomStateAsync saves without blocking the caller. Stop waits
// for outstanding saves before closing the database.
func (s *Server) saveRoomStateAsync(roomID, reason string) {
	s.saveWg.Add(1)
	go func() {
		defer s.saveWg.Done()
		if err := s.saveRoomState(roomID, reason); err != nil {
			s.log.Errorf("async save of room %s failed: %v", roomID, err)
		}
	}()
}
