package gamedb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Database holds the in-memory object table.
type Database struct {
	mu      sync.RWMutex
	objects map[DBRef]*Object
	nextRef DBRef
}

// NewDatabase creates an empty Database. References start at #1.
func NewDatabase() *Database {
	return &Database{
		objects: make(map[DBRef]*Object),
		nextRef: 1,
	}
}

// Get returns the object for ref.
func (db *Database) Get(ref DBRef) (*Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	obj, ok := db.objects[ref]
	return obj, ok
}

// Put stores obj under its own reference, advancing the allocator past it.
func (db *Database) Put(obj *Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.objects[obj.DBRef] = obj
	if obj.DBRef >= db.nextRef {
		db.nextRef = obj.DBRef + 1
	}
}

// Allocate creates and stores a fresh object with the next free reference.
func (db *Database) Allocate(key string, typ ObjectType) *Object {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj := NewObject(db.nextRef, key, typ)
	db.objects[obj.DBRef] = obj
	db.nextRef++
	return obj
}

// NextRef returns the reference the next Allocate will use.
func (db *Database) NextRef() DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextRef
}

// Reserve moves the allocator forward to next if it is behind.
func (db *Database) Reserve(next DBRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if next > db.nextRef {
		db.nextRef = next
	}
}

// Delete unlinks ref from its location and removes it from the table.
func (db *Database) Delete(ref DBRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj, ok := db.objects[ref]
	if !ok {
		return
	}
	db.unlinkLocked(obj)
	delete(db.objects, ref)
}

// Len returns the number of objects.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.objects)
}

// All returns every object ordered by reference.
func (db *Database) All() []*Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Object, 0, len(db.objects))
	for _, obj := range db.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DBRef < out[j].DBRef })
	return out
}

// CountByType returns the number of objects of each type.
func (db *Database) CountByType() map[ObjectType]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	counts := make(map[ObjectType]int)
	for _, obj := range db.objects {
		counts[obj.Type]++
	}
	return counts
}

// Contents walks loc's contents chain.
func (db *Database) Contents(loc DBRef) []*Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	locObj, ok := db.objects[loc]
	if !ok {
		return nil
	}
	return db.chainLocked(locObj.Contents)
}

// Exits walks room's exit chain.
func (db *Database) Exits(room DBRef) []*Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	roomObj, ok := db.objects[room]
	if !ok {
		return nil
	}
	return db.chainLocked(roomObj.Exits)
}

func (db *Database) chainLocked(head DBRef) []*Object {
	var out []*Object
	seen := make(map[DBRef]bool)
	for next := head; next != Nothing && !seen[next]; {
		seen[next] = true
		obj, ok := db.objects[next]
		if !ok {
			break
		}
		out = append(out, obj)
		next = obj.Next
	}
	return out
}

// Move relocates ref into dest, updating both chains. Exits go into the
// destination's exit chain, everything else into its contents.
func (db *Database) Move(ref, dest DBRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj, ok := db.objects[ref]
	if !ok {
		return fmt.Errorf("gamedb: move %s: no such object", ref)
	}
	destObj, ok := db.objects[dest]
	if !ok {
		return fmt.Errorf("gamedb: move %s: no such destination %s", ref, dest)
	}
	for loc := dest; loc != Nothing; {
		if loc == ref {
			return fmt.Errorf("gamedb: move %s into %s would loop", ref, dest)
		}
		l, ok := db.objects[loc]
		if !ok {
			break
		}
		loc = l.Location
	}
	db.unlinkLocked(obj)
	obj.Location = dest
	if obj.Type == TypeExit {
		obj.Next = destObj.Exits
		destObj.Exits = ref
	} else {
		obj.Next = destObj.Contents
		destObj.Contents = ref
	}
	return nil
}

// unlinkLocked removes obj from whichever chain of its location holds it.
func (db *Database) unlinkLocked(obj *Object) {
	if obj.Location == Nothing {
		return
	}
	locObj, ok := db.objects[obj.Location]
	if !ok {
		obj.Location = Nothing
		return
	}
	head := &locObj.Contents
	if obj.Type == TypeExit {
		head = &locObj.Exits
	}
	if *head == obj.DBRef {
		*head = obj.Next
	} else {
		seen := make(map[DBRef]bool)
		for prev := *head; prev != Nothing && !seen[prev]; {
			seen[prev] = true
			prevObj, ok := db.objects[prev]
			if !ok {
				break
			}
			if prevObj.Next == obj.DBRef {
				prevObj.Next = obj.Next
				break
			}
			prev = prevObj.Next
		}
	}
	obj.Next = Nothing
	obj.Location = Nothing
}

// Match resolves name from looker's point of view: "me", "here", "#ref", or a
// key/alias among looker's inventory, location contents and location exits.
// Returns Nothing when nothing matches and Ambiguous when several do.
func (db *Database) Match(looker DBRef, name string) DBRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return Nothing
	}
	lookerObj, ok := db.Get(looker)
	if !ok {
		return Nothing
	}
	switch strings.ToLower(name) {
	case "me":
		return looker
	case "here":
		return lookerObj.Location
	}
	if strings.HasPrefix(name, "#") {
		n, err := strconv.Atoi(name[1:])
		if err != nil {
			return Nothing
		}
		if _, ok := db.Get(DBRef(n)); ok {
			return DBRef(n)
		}
		return Nothing
	}

	var candidates []*Object
	candidates = append(candidates, db.Contents(looker)...)
	if lookerObj.Location != Nothing {
		candidates = append(candidates, db.Contents(lookerObj.Location)...)
		candidates = append(candidates, db.Exits(lookerObj.Location)...)
	}
	found := Nothing
	for _, c := range candidates {
		if !c.Matches(name) {
			continue
		}
		if found != Nothing && found != c.DBRef {
			return Ambiguous
		}
		found = c.DBRef
	}
	return found
}
