package rooms

import "errors"

var (
	// ErrAuthFailed means the access token did not verify.
	ErrAuthFailed = errors.New("bad access token")

	// ErrInvalidMeetingID means the meeting code is not exactly six characters.
	ErrInvalidMeetingID = errors.New("invalid meeting ID")

	// ErrMeetingNotFound means no meeting record exists for the code.
	ErrMeetingNotFound = errors.New("no meeting in store")

	// ErrNotAuthorized means the requester tried to open someone else's meeting.
	ErrNotAuthorized = errors.New("not authorized to open a different meeting ID")

	// ErrRoomClosed means the room was disposed while the caller was joining.
	ErrRoomClosed = errors.New("room already disposed")
)
