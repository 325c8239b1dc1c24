package rooms

// ScreenShareArbiter is the single-owner gate for the screen-share resource.
// The holder is identified by connection key; empty means free. Not safe for
// concurrent use: callers serialize through the room lock.
type ScreenShareArbiter struct {
	holder string
}

func NewScreenShareArbiter() *ScreenShareArbiter { return &ScreenShareArbiter{} }

// Holder returns the current holder's connection key, or "" when free.
func (s *ScreenShareArbiter) Holder() string { return s.holder }

// Start tries to acquire the screen share for key. When denied, holder names
// the current owner so the requester can resync.
func (s *ScreenShareArbiter) Start(key string) (ok bool, holder string) {
	if s.holder != "" {
		return false, s.holder
	}
	s.holder = key
	return true, key
}

// Stop releases the screen share. Only the holder or the room owner may
// release; released is the prior holder's key.
func (s *ScreenShareArbiter) Stop(key string, isOwner bool) (released string, ok bool) {
	if s.holder == "" {
		return "", false
	}
	if s.holder != key && !isOwner {
		return "", false
	}
	released = s.holder
	s.holder = ""
	return released, true
}

// ForceRelease frees the screen share if key holds it; used on disconnect.
func (s *ScreenShareArbiter) ForceRelease(key string) (released string, ok bool) {
	if s.holder != key || s.holder == "" {
		return "", false
	}
	released = s.holder
	s.holder = ""
	return released, true
}
