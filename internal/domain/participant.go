package domain

type UserID string

// MediaState carries the self-reported mute/camera flags of a participant.
// Both default to true: a client is assumed muted with camera off until it
// reports otherwise.
type MediaState struct {
	Muted    bool `json:"isMuted"`
	VideoOff bool `json:"isVideoOff"`
}

func DefaultMediaState() MediaState {
	return MediaState{Muted: true, VideoOff: true}
}

// Participant is one user's membership record in a room. The profile
// fields are a snapshot taken at join time, refreshed only by a re-join.
type Participant struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	MediaState
}
