package engine

import (
	"context"
	"errors"
	"time"

	"profilehub-api/internal/model"
	"profilehub-api/internal/repository"
)

// Session drives one command's profile mutations: load, mutate in memory
// while journaling, advance revisions, persist, shape the response. The
// first profile opened is the primary (the one named by the request); any
// further profiles are secondaries and ride in the response's multiUpdate
// list with their own independent revisions.
//
// Commit is not a transaction. Profiles are persisted one at a time in open
// order; a failure after the first save leaves earlier profiles durable and
// surfaces as a PartialFailureError.
type Session struct {
	repo          repository.ProfileRepository
	now           func() time.Time
	profiles      []*Profile
	notifications []interface{}
}

// Profile is a handle on one loaded profile inside a session. Mutation
// helpers update the in-memory copy and journal the matching change record
// in one step, so handlers cannot get the two out of order.
type Profile struct {
	doc     *model.ProfileDocument
	journal Journal
}

// Begin loads the primary profile for a command. Returns ErrProfileNotFound
// if the document does not exist.
func Begin(ctx context.Context, repo repository.ProfileRepository, accountID string, profileID model.ProfileID) (*Session, error) {
	s := &Session{repo: repo, now: time.Now}
	if _, err := s.Open(ctx, accountID, profileID); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads an additional profile into the session. The first Open names
// the primary; later calls add secondaries in the order they will be
// persisted.
func (s *Session) Open(ctx context.Context, accountID string, profileID model.ProfileID) (*Profile, error) {
	doc, err := s.repo.GetProfile(ctx, accountID, profileID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	p := &Profile{doc: doc}
	s.profiles = append(s.profiles, p)
	return p, nil
}

// Primary returns the handle for the profile named by the request.
func (s *Session) Primary() *Profile {
	return s.profiles[0]
}

// Notify attaches a handler-specific notification payload to the response.
func (s *Session) Notify(payload interface{}) {
	s.notifications = append(s.notifications, payload)
}

// Commit advances and persists every mutated profile, then shapes the
// response against the client's declared revision. Profiles whose journal
// is empty are neither advanced nor saved; a command that mutated nothing
// anywhere burns no revision and performs no writes.
func (s *Session) Commit(ctx context.Context, clientRevision int64) (*model.CommandResponse, error) {
	var committed []ProfileRef
	for _, p := range s.profiles {
		if p.journal.Len() == 0 {
			continue
		}
		p.doc.Advance()
		p.doc.Updated = s.now().UTC()
		if err := s.repo.SaveProfile(ctx, p.doc); err != nil {
			ref := ProfileRef{AccountID: p.doc.AccountID, ProfileID: p.doc.ProfileID}
			// Discard the uncommitted in-memory advance so the document
			// handle never claims a revision that was not made durable.
			p.doc.Rvn--
			p.doc.CommandRevision--
			if len(committed) > 0 {
				return nil, &PartialFailureError{Committed: committed, Failed: ref, Err: err}
			}
			return nil, &PersistenceError{Profile: ref, Err: err}
		}
		committed = append(committed, ProfileRef{AccountID: p.doc.AccountID, ProfileID: p.doc.ProfileID})
	}

	primary := s.profiles[0]
	changes, base := reconcile(clientRevision, primary.doc, primary.journal.Changes())
	resp := &model.CommandResponse{
		ProfileRevision:            primary.doc.Rvn,
		ProfileID:                  primary.doc.ProfileID,
		ProfileChangesBaseRevision: base,
		ProfileChanges:             changes,
		ProfileCommandRevision:     primary.doc.CommandRevision,
		ServerTime:                 s.now().UTC(),
		ResponseVersion:            model.ResponseVersion,
		Notifications:              s.notifications,
	}

	for _, p := range s.profiles[1:] {
		if p.journal.Len() == 0 {
			continue
		}
		resp.MultiUpdate = append(resp.MultiUpdate, model.ProfileUpdate{
			ProfileRevision:            p.doc.Rvn,
			ProfileID:                  p.doc.ProfileID,
			ProfileChangesBaseRevision: p.doc.Rvn - 1,
			ProfileChanges:             p.journal.Changes(),
			ProfileCommandRevision:     p.doc.CommandRevision,
		})
	}

	return resp, nil
}

// CommittedProfiles returns refs for every profile the session touched, in
// persistence order. Used by callers that maintain read caches.
func (s *Session) CommittedProfiles() []ProfileRef {
	refs := make([]ProfileRef, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.journal.Len() == 0 {
			continue
		}
		refs = append(refs, ProfileRef{AccountID: p.doc.AccountID, ProfileID: p.doc.ProfileID})
	}
	return refs
}

// Document exposes the underlying in-memory document. Read-only use;
// mutations must go through the helpers so they are journaled.
func (p *Profile) Document() *model.ProfileDocument {
	return p.doc
}

// Item returns the item instance for id, or an ItemNotFoundError.
func (p *Profile) Item(itemID string) (*model.Item, error) {
	item, ok := p.doc.Items[itemID]
	if !ok {
		return nil, &ItemNotFoundError{ItemID: itemID}
	}
	return item, nil
}

// FindItemByTemplate returns the first item instance with the given
// template id, or empty when none exists. Iteration order is unspecified;
// callers that care keep one instance per template.
func (p *Profile) FindItemByTemplate(templateID string) (string, *model.Item) {
	for id, item := range p.doc.Items {
		if item.TemplateID == templateID {
			return id, item
		}
	}
	return "", nil
}

// AddItem inserts an item instance and journals itemAdded. Instance id
// uniqueness is the caller's responsibility; ids come from the external
// allocator.
func (p *Profile) AddItem(itemID string, item *model.Item) {
	p.doc.Items[itemID] = item
	p.journal.Record(model.ItemAdded(itemID, item))
}

// RemoveItem deletes an item instance and journals itemRemoved.
func (p *Profile) RemoveItem(itemID string) error {
	if _, ok := p.doc.Items[itemID]; !ok {
		return &ItemNotFoundError{ItemID: itemID}
	}
	delete(p.doc.Items, itemID)
	p.journal.Record(model.ItemRemoved(itemID))
	return nil
}

// SetItemQuantity updates an instance's quantity and journals
// itemQuantityChanged. A resulting quantity of zero does not remove the
// item; callers emit RemoveItem themselves when they want that.
func (p *Profile) SetItemQuantity(itemID string, quantity int64) error {
	item, ok := p.doc.Items[itemID]
	if !ok {
		return &ItemNotFoundError{ItemID: itemID}
	}
	item.Quantity = quantity
	p.journal.Record(model.ItemQuantityChanged(itemID, quantity))
	return nil
}

// SetItemAttribute updates one attribute on an instance and journals
// itemAttrChanged.
func (p *Profile) SetItemAttribute(itemID, name string, value interface{}) error {
	item, ok := p.doc.Items[itemID]
	if !ok {
		return &ItemNotFoundError{ItemID: itemID}
	}
	if item.Attributes == nil {
		item.Attributes = make(map[string]interface{})
	}
	item.Attributes[name] = value
	p.journal.Record(model.ItemAttrChanged(itemID, name, value))
	return nil
}

// SetStat updates a profile-level stat and journals statModified. Writing
// the value a stat already holds still journals a record; by convention a
// stat write is never a silent no-op.
func (p *Profile) SetStat(name string, value interface{}) {
	if p.doc.Stats.Attributes == nil {
		p.doc.Stats.Attributes = make(map[string]interface{})
	}
	p.doc.Stats.Attributes[name] = value
	p.journal.Record(model.StatModified(name, value))
}
