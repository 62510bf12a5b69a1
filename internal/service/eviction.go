package service

// selectVictim returns the id with the oldest lastActivity. Ties go to the
// smallest id so the choice does not depend on map iteration order.
func selectVictim(sessions map[string]*session) (string, bool) {
	var (
		victim string
		oldest *session
	)
	for id, rec := range sessions {
		if oldest == nil ||
			rec.lastActivity.Before(oldest.lastActivity) ||
			(rec.lastActivity.Equal(oldest.lastActivity) && id < victim) {
			victim = id
			oldest = rec
		}
	}
	return victim, oldest != nil
}
