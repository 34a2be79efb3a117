package models

// PlayRecord is the canonical representation of one song-play event after
// extraction: non-play rows are already filtered out and only these eleven
// fields survive projection.
type PlayRecord struct {
	Artist        string   `json:"artist"`
	FirstName     string   `json:"firstName"`
	Gender        string   `json:"gender"`
	ItemInSession int32    `json:"itemInSession"`
	LastName      string   `json:"lastName"`
	Length        *float64 `json:"length,omitempty"`
	Level         string   `json:"level"`
	Location      string   `json:"location"`
	SessionID     int32    `json:"sessionId"`
	Song          string   `json:"song"`
	UserID        int32    `json:"userId"`
}

// SessionItem is the answer shape of the session/item lookup.
type SessionItem struct {
	Artist string   `json:"artist"`
	Song   string   `json:"song"`
	Length *float64 `json:"length,omitempty"`
}

// UserSessionPlay is one element of the ordered user-session playlist.
type UserSessionPlay struct {
	Artist    string `json:"artist"`
	Song      string `json:"song"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Listener identifies one user that played a given song.
type Listener struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoadRequest triggers a batch load run over a directory of raw event logs.
// An empty Dir falls back to the configured event data directory.
type LoadRequest struct {
	Dir string `json:"dir"`
}

// LoadResult summarizes a completed batch load run.
type LoadResult struct {
	RunID     string `json:"runId"`
	Files     int    `json:"files"`
	RawRows   int    `json:"rawRows"`
	Records   int    `json:"records"`
	Discarded int    `json:"discarded"`
}
