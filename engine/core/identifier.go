package core

import "fmt"

// IDPool hands out dense uint32 identifiers, reusing released slots first.
type IDPool struct {
	owners []interface{}
}

func NewIDPool(capacity int) *IDPool {
	return &IDPool{
		owners: make([]interface{}, 0, capacity),
	}
}

// Acquire returns the lowest free id and binds it to owner.
func (p *IDPool) Acquire(owner interface{}) uint32 {
	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i)
		}
	}
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IDPool) Release(id uint32) error {
	if int(id) >= len(p.owners) {
		err := fmt.Errorf("id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
		LogError("%s", err)
		return err
	}
	p.owners[id] = nil
	return nil
}

// Owner returns the owner bound to id, or nil.
func (p *IDPool) Owner(id uint32) interface{} {
	if int(id) >= len(p.owners) {
		return nil
	}
	return p.owners[id]
}

func (p *IDPool) Len() int {
	return len(p.owners)
}
