package registry

import (
	"strconv"
	"sync"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

type orderEntry struct {
	desc     schema.OrderDescriptor
	status   schema.OrderStatus
	terminal bool
}

// OrderRegistry maps venue order ids to the latest order descriptor version and
// client keys back to venue order ids.
type OrderRegistry struct {
	mu    sync.RWMutex
	byID  map[schema.OrderID]*orderEntry
	byKey map[schema.ClientKey]schema.OrderID
}

// NewOrderRegistry creates an empty order registry.
func NewOrderRegistry() *OrderRegistry {
	reg := new(OrderRegistry)
	reg.byID = make(map[schema.OrderID]*orderEntry)
	reg.byKey = make(map[schema.ClientKey]schema.OrderID)
	return reg
}

func orderField(id schema.OrderID) errs.Option {
	return errs.WithField("order_id", strconv.FormatInt(int64(id), 10))
}

// Bind binds the first version of an order to a venue order id.
func (r *OrderRegistry) Bind(id schema.OrderID, desc schema.OrderDescriptor) error {
	key := desc.Key()
	if desc.Version <= 0 {
		desc.Version = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok {
		if existing.desc.Equal(desc) {
			return nil
		}
		return errs.New("registry/order", errs.CodeDuplicateCorrelation,
			errs.WithMessage("order id already bound to a different descriptor"), orderField(id))
	}
	if other, ok := r.byKey[key]; ok {
		return errs.New("registry/order", errs.CodeDuplicateCorrelation,
			errs.WithMessage("client order id already bound"), orderField(other))
	}
	r.byID[id] = &orderEntry{desc: desc}
	r.byKey[key] = id
	return nil
}

// Rebind stores a new descriptor version under an existing venue order id.
// The client key must not change; the version is forced past the current one.
func (r *OrderRegistry) Rebind(id schema.OrderID, next schema.OrderDescriptor) (schema.OrderDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return schema.OrderDescriptor{}, errs.New("registry/order", errs.CodeUnresolvedCorrelation,
			errs.WithMessage("order id not bound"), orderField(id))
	}
	if entry.desc.Key() != next.Key() {
		return schema.OrderDescriptor{}, errs.New("registry/order", errs.CodeInvalid,
			errs.WithMessage("replace must keep the client order key"), orderField(id))
	}
	if next.Version <= entry.desc.Version {
		next.Version = entry.desc.Version + 1
	}
	entry.desc = next
	return next, nil
}

// Restore puts prev back as the bound descriptor when the current version is
// still expected. It reports whether the swap happened.
func (r *OrderRegistry) Restore(id schema.OrderID, expected int, prev schema.OrderDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok || entry.desc.Version != expected || entry.desc.Key() != prev.Key() {
		return false
	}
	entry.desc = prev
	return true
}

// ResolveByID returns the latest descriptor bound to the venue order id.
func (r *OrderRegistry) ResolveByID(id schema.OrderID) (schema.OrderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	if !ok {
		return schema.OrderDescriptor{}, false
	}
	return entry.desc, true
}

// ResolveByClientKey returns the latest descriptor for the client key.
func (r *OrderRegistry) ResolveByClientKey(clientID, clientOrderID string) (schema.OrderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[schema.ClientKey{ClientID: clientID, ClientOrderID: clientOrderID}]
	if !ok {
		return schema.OrderDescriptor{}, false
	}
	return r.byID[id].desc, true
}

// ResolveIDByClientKey returns the venue order id for the client key.
func (r *OrderRegistry) ResolveIDByClientKey(clientID, clientOrderID string) (schema.OrderID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[schema.ClientKey{ClientID: clientID, ClientOrderID: clientOrderID}]
	return id, ok
}

// MarkTerminal flags the order as logically terminal. The binding is kept so
// late execution reports still resolve.
func (r *OrderRegistry) MarkTerminal(id schema.OrderID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok {
		return false
	}
	entry.terminal = true
	return true
}

// Status returns the last venue status recorded for the order.
func (r *OrderRegistry) Status(id schema.OrderID) (schema.OrderStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	if !ok || entry.status == "" {
		return "", false
	}
	return entry.status, true
}

// SetStatus records the latest status for the order. A terminal status also
// marks the order terminal. It reports false when the order is not bound.
func (r *OrderRegistry) SetStatus(id schema.OrderID, status schema.OrderStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok {
		return false
	}
	entry.status = status
	if status.Terminal() {
		entry.terminal = true
	}
	return true
}

// Terminal reports whether the order has been flagged terminal.
func (r *OrderRegistry) Terminal(id schema.OrderID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	return ok && entry.terminal
}

// Unbind removes the order binding in both directions.
func (r *OrderRegistry) Unbind(id schema.OrderID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	key := entry.desc.Key()
	if cur, ok := r.byKey[key]; ok && cur == id {
		delete(r.byKey, key)
	}
	return true
}

// Len returns the number of bound orders.
func (r *OrderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
