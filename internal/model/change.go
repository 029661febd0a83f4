package model

// Change type discriminators. Clients switch on changeType when applying a
// profileChanges sequence.
const (
	ChangeItemAdded           = "itemAdded"
	ChangeItemRemoved         = "itemRemoved"
	ChangeItemQuantityChanged = "itemQuantityChanged"
	ChangeItemAttrChanged     = "itemAttrChanged"
	ChangeStatModified        = "statModified"
	ChangeFullProfileUpdate   = "fullProfileUpdate"
)

// ChangeRecord is one typed description of a single mutation, emitted in
// the order the mutation happened. Which fields are set depends on
// ChangeType. A fullProfileUpdate record supersedes every other record in
// the same response.
type ChangeRecord struct {
	ChangeType     string           `json:"changeType"`
	ItemID         string           `json:"itemId,omitempty"`
	Item           *Item            `json:"item,omitempty"`
	Quantity       *int64           `json:"quantity,omitempty"`
	AttributeName  string           `json:"attributeName,omitempty"`
	AttributeValue interface{}      `json:"attributeValue,omitempty"`
	Name           string           `json:"name,omitempty"`
	Value          interface{}      `json:"value,omitempty"`
	Profile        *ProfileDocument `json:"profile,omitempty"`
}

// ItemAdded records a new item instance.
func ItemAdded(itemID string, item *Item) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeItemAdded, ItemID: itemID, Item: item}
}

// ItemRemoved records the removal of an item instance.
func ItemRemoved(itemID string) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeItemRemoved, ItemID: itemID}
}

// ItemQuantityChanged records a quantity update. A zero quantity does not
// imply removal; removal is a separate record when the handler wants it.
func ItemQuantityChanged(itemID string, quantity int64) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeItemQuantityChanged, ItemID: itemID, Quantity: &quantity}
}

// ItemAttrChanged records a single attribute update on an item instance.
func ItemAttrChanged(itemID, name string, value interface{}) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeItemAttrChanged, ItemID: itemID, AttributeName: name, AttributeValue: value}
}

// StatModified records a profile-level stat update.
func StatModified(name string, value interface{}) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeStatModified, Name: name, Value: value}
}

// FullProfileUpdate records an entire profile snapshot, used to
// resynchronize a client whose cached revision cannot be trusted.
func FullProfileUpdate(profile *ProfileDocument) ChangeRecord {
	return ChangeRecord{ChangeType: ChangeFullProfileUpdate, Profile: profile}
}
