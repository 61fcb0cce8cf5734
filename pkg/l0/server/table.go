package server

import (
	"fmt"
	"strings"
	"sync"
)

// Permission bits of a registered item.
type Permission byte

const (
	// PermRead allows READ requests.
	PermRead Permission = 0x01
	// PermWrite allows WRITE requests.
	PermWrite Permission = 0x02
	// PermNotify marks the item as notifiable.
	PermNotify Permission = 0x04
)

// String implements fmt.Stringer.
func (p Permission) String() string {
	var flags []string
	if p&PermRead != 0 {
		flags = append(flags, "read")
	}
	if p&PermWrite != 0 {
		flags = append(flags, "write")
	}
	if p&PermNotify != 0 {
		flags = append(flags, "notify")
	}
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, "|")
}

// ParsePermission parses permissions like "rw", "r", "rwn".
func ParsePermission(s string) (Permission, error) {
	var p Permission
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'n':
			p |= PermNotify
		default:
			return 0, fmt.Errorf("invalid permission %q", s)
		}
	}
	return p, nil
}

// Item is a registered characteristic or object. Data is owned by the
// caller and is written in place by WRITE requests.
type Item struct {
	ID   byte
	Data []byte
	Perm Permission
}

// Table is a fixed capacity unordered dispatch table. ID uniqueness isn't
// enforced, Lookup returns the first match.
type Table struct {
	lock  sync.Mutex
	items []Item
}

// NewTable creates a Table holding up to capacity items.
func NewTable(capacity int) *Table {
	return &Table{items: make([]Item, 0, capacity)}
}

// Cap returns the capacity.
func (t *Table) Cap() int {
	return cap(t.items)
}

// Len returns the number of registered items.
func (t *Table) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.items)
}

// Register appends an item.
func (t *Table) Register(id byte, data []byte, perm Permission) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if len(t.items) == cap(t.items) {
		return ErrTableFull
	}
	t.items = append(t.items, Item{ID: id, Data: data, Perm: perm})
	return nil
}

// Deregister removes the item of id by moving the last item into its slot.
func (t *Table) Deregister(id byte) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	for n := range t.items {
		if t.items[n].ID == id {
			last := len(t.items) - 1
			t.items[n] = t.items[last]
			t.items[last] = Item{}
			t.items = t.items[:last]
			return true
		}
	}
	return false
}

// Lookup finds the item of id.
func (t *Table) Lookup(id byte) (Item, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, item := range t.items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// Items returns a copy of the registered items in table order.
func (t *Table) Items() []Item {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]Item(nil), t.items...)
}
