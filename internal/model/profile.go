package model

import (
	"encoding/json"
	"time"
)

// ProfileID names one of the per-account profile kinds. Every account owns
// at most one document per kind.
type ProfileID string

const (
	// ProfileInventory holds cosmetic and gameplay item instances.
	ProfileInventory ProfileID = "inventory"
	// ProfileWallet holds currency balances and account-level economy state.
	ProfileWallet ProfileID = "wallet"
	// ProfileCampaign holds campaign progression state.
	ProfileCampaign ProfileID = "campaign"
	// ProfileTheater holds theater/world state.
	ProfileTheater ProfileID = "theater"
)

// KnownProfileIDs lists the profile kinds the service provisions for new
// accounts.
var KnownProfileIDs = []ProfileID{ProfileInventory, ProfileWallet, ProfileCampaign, ProfileTheater}

// IsValid reports whether p is one of the known profile kinds.
func (p ProfileID) IsValid() bool {
	for _, known := range KnownProfileIDs {
		if p == known {
			return true
		}
	}
	return false
}

// RevisionPair is the monotonic revision bookkeeping carried by every
// profile document. The two counters advance in lockstep; they are kept as
// separate wire fields for client compatibility.
type RevisionPair struct {
	Rvn             int64 `json:"rvn" bson:"rvn"`
	CommandRevision int64 `json:"commandRevision" bson:"commandRevision"`
}

// Advance increments both counters. Called exactly once per mutating
// command against the owning document, never for a no-op.
func (r *RevisionPair) Advance() {
	r.Rvn++
	r.CommandRevision++
}

// Item is a single item instance inside a profile. Attributes are an open
// bag whose schema is owned by the template, not by the sync layer.
type Item struct {
	TemplateID string                 `json:"templateId" bson:"templateId"`
	Attributes map[string]interface{} `json:"attributes" bson:"attributes"`
	Quantity   int64                  `json:"quantity" bson:"quantity"`
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	out := &Item{
		TemplateID: i.TemplateID,
		Quantity:   i.Quantity,
	}
	if i.Attributes != nil {
		out.Attributes = deepCopyMap(i.Attributes)
	}
	return out
}

// Stats holds profile-level state not tied to an item instance.
type Stats struct {
	Attributes map[string]interface{} `json:"attributes" bson:"attributes"`
}

// ProfileDocument is one account's versioned state for one subsystem.
// Only the embedded RevisionPair is interpreted by the sync engine;
// everything under Items and Stats is opaque handler payload.
type ProfileDocument struct {
	AccountID    string    `json:"accountId" bson:"accountId"`
	ProfileID    ProfileID `json:"profileId" bson:"profileId"`
	RevisionPair `bson:",inline"`
	Items        map[string]*Item `json:"items" bson:"items"`
	Stats        Stats            `json:"stats" bson:"stats"`
	Updated      time.Time        `json:"updated" bson:"updated"`
}

// NewProfileDocument creates an empty profile at revision zero.
func NewProfileDocument(accountID string, profileID ProfileID) *ProfileDocument {
	return &ProfileDocument{
		AccountID: accountID,
		ProfileID: profileID,
		Items:     make(map[string]*Item),
		Stats:     Stats{Attributes: make(map[string]interface{})},
		Updated:   time.Now().UTC(),
	}
}

// Clone returns a deep copy of the document. Commands mutate a private
// copy and write it back; no shared in-memory document is mutated by two
// concurrent commands.
func (d *ProfileDocument) Clone() *ProfileDocument {
	out := &ProfileDocument{
		AccountID:    d.AccountID,
		ProfileID:    d.ProfileID,
		RevisionPair: d.RevisionPair,
		Items:        make(map[string]*Item, len(d.Items)),
		Stats:        Stats{Attributes: deepCopyMap(d.Stats.Attributes)},
		Updated:      d.Updated,
	}
	for id, item := range d.Items {
		out.Items[id] = item.Clone()
	}
	return out
}

// deepCopyMap copies an open attribute map through a JSON round trip.
// Attribute values are arbitrary decoded JSON, so this covers nested
// objects and arrays without enumerating types.
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	if len(m) == 0 {
		return make(map[string]interface{})
	}
	data, err := json.Marshal(m)
	if err != nil {
		return make(map[string]interface{})
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return make(map[string]interface{})
	}
	return out
}
