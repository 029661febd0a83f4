package model

import "time"

// ResponseVersion is the fixed version tag carried by every command
// response.
const ResponseVersion = 1

// ProfileUpdate is one profile's slice of a command response: the base and
// post-command revisions plus the ordered change sequence. Secondary
// profiles touched by a multi-profile command each get their own entry in
// the response's multiUpdate list.
type ProfileUpdate struct {
	ProfileRevision            int64          `json:"profileRevision"`
	ProfileID                  ProfileID      `json:"profileId"`
	ProfileChangesBaseRevision int64          `json:"profileChangesBaseRevision"`
	ProfileChanges             []ChangeRecord `json:"profileChanges"`
	ProfileCommandRevision     int64          `json:"profileCommandRevision"`
}

// CommandResponse is the wire envelope for a command. The top-level fields
// describe the primary profile (the one named by the request); any other
// profiles the command touched ride in MultiUpdate.
type CommandResponse struct {
	ProfileRevision            int64           `json:"profileRevision"`
	ProfileID                  ProfileID       `json:"profileId"`
	ProfileChangesBaseRevision int64           `json:"profileChangesBaseRevision"`
	ProfileChanges             []ChangeRecord  `json:"profileChanges"`
	ProfileCommandRevision     int64           `json:"profileCommandRevision"`
	ServerTime                 time.Time       `json:"serverTime"`
	ResponseVersion            int             `json:"responseVersion"`
	Notifications              []interface{}   `json:"notifications,omitempty"`
	MultiUpdate                []ProfileUpdate `json:"multiUpdate,omitempty"`
}
