package session

import (
	"encoding/json"
	"errors"
)

// ErrRecordCorrupt is returned when a stored hash field does not decode as a
// session record.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Record is one device session as stored in the user's session hash.
// SessionID is the hash field name, not part of the stored value; the store
// fills it in on read.
type Record struct {
	SessionID    string `json:"-"`
	RefreshToken string `json:"refresh_token"`
	IP           string `json:"ip"`
	CreatedAt    int64  `json:"created_at"`
	UserAgent    string `json:"user_agent"`
}

func encodeRecord(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRecord(sessionID, raw string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, ErrRecordCorrupt
	}
	if r.RefreshToken == "" {
		return Record{}, ErrRecordCorrupt
	}
	r.SessionID = sessionID
	return r, nil
}
