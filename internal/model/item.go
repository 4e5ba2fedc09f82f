package model

import "time"

type ItemKind int

const (
	KindStored ItemKind = iota
	KindExternal
)

func (k ItemKind) String() string {
	if k == KindExternal {
		return "external"
	}
	return "stored"
}

// Item is either a stored Occurrence or an ExternalEntry. Views and the
// timeslot grid only read it through the accessors below.
type Item struct {
	kind     ItemKind
	stored   *Occurrence
	external *ExternalEntry
}

func StoredItem(o *Occurrence) Item {
	return Item{kind: KindStored, stored: o}
}

func ExternalItem(e *ExternalEntry) Item {
	return Item{kind: KindExternal, external: e}
}

func (i Item) Kind() ItemKind { return i.kind }

// Occurrence returns the stored occurrence, if this is a stored item.
func (i Item) Occurrence() (*Occurrence, bool) {
	return i.stored, i.kind == KindStored && i.stored != nil
}

// External returns the feed entry, if this is an external item.
func (i Item) External() (*ExternalEntry, bool) {
	return i.external, i.kind == KindExternal && i.external != nil
}

// Owned reports whether the item has a local identity that can be edited.
func (i Item) Owned() bool {
	return i.kind == KindStored
}

func (i Item) Start() time.Time {
	if i.kind == KindExternal {
		return i.external.Start
	}
	return i.stored.Start
}

func (i Item) End() time.Time {
	if i.kind == KindExternal {
		return i.external.End
	}
	return i.stored.End
}

func (i Item) Title() string {
	if i.kind == KindExternal {
		return i.external.Summary
	}
	return i.stored.Title()
}

// LocationKey identifies where the item takes place: the location slug for
// stored items, the free-text LOCATION for feed entries.
func (i Item) LocationKey() string {
	if i.kind == KindExternal {
		return i.external.Location
	}
	if i.stored.Event != nil {
		return i.stored.Event.Location.Slug
	}
	return ""
}
