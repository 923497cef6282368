package registry

import (
	"strconv"
	"sync"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

type subscriptionBinding struct {
	desc        schema.SubscriptionDescriptor
	fingerprint string
	scratch     *ScratchRecord
}

// SubscriptionRegistry maps correlation ids to subscription descriptors and back.
// Mutations are serialised; lookups may run concurrently with them.
type SubscriptionRegistry struct {
	mu            sync.RWMutex
	seq           *Sequence
	byID          map[schema.CorrelationID]*subscriptionBinding
	byFingerprint map[string]schema.CorrelationID
}

// NewSubscriptionRegistry creates a registry allocating ids from seq.
func NewSubscriptionRegistry(seq *Sequence) *SubscriptionRegistry {
	if seq == nil {
		seq = NewSequence(1)
	}
	reg := new(SubscriptionRegistry)
	reg.seq = seq
	reg.byID = make(map[schema.CorrelationID]*subscriptionBinding)
	reg.byFingerprint = make(map[string]schema.CorrelationID)
	return reg
}

// Bind returns the id bound to an equal descriptor, or allocates and binds a new one.
// created reports whether a new binding was made.
func (r *SubscriptionRegistry) Bind(desc schema.SubscriptionDescriptor) (id schema.CorrelationID, created bool) {
	fp := desc.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byFingerprint[fp]; ok {
		return existing, false
	}
	for {
		id = schema.CorrelationID(r.seq.Next())
		if _, taken := r.byID[id]; !taken {
			break
		}
	}
	r.bindLocked(id, desc, fp)
	return id, true
}

// BindID binds a caller-chosen id. Rebinding the same id to an equal descriptor is a no-op.
func (r *SubscriptionRegistry) BindID(id schema.CorrelationID, desc schema.SubscriptionDescriptor) error {
	fp := desc.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok {
		if existing.fingerprint == fp {
			return nil
		}
		return errs.New("registry/subscription", errs.CodeDuplicateCorrelation,
			errs.WithMessage("correlation id already bound to a different descriptor"),
			errs.WithField("correlation_id", strconv.FormatInt(int64(id), 10)))
	}
	if other, ok := r.byFingerprint[fp]; ok {
		return errs.New("registry/subscription", errs.CodeDuplicateCorrelation,
			errs.WithMessage("descriptor already bound to another correlation id"),
			errs.WithField("correlation_id", strconv.FormatInt(int64(other), 10)))
	}
	r.bindLocked(id, desc, fp)
	return nil
}

func (r *SubscriptionRegistry) bindLocked(id schema.CorrelationID, desc schema.SubscriptionDescriptor, fp string) {
	r.byID[id] = &subscriptionBinding{desc: desc, fingerprint: fp, scratch: newScratchRecord(desc)}
	r.byFingerprint[fp] = id
}

// Resolve returns the descriptor bound to id.
func (r *SubscriptionRegistry) Resolve(id schema.CorrelationID) (schema.SubscriptionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return schema.SubscriptionDescriptor{}, false
	}
	return b.desc, true
}

// Scratch returns the scratch record bound to id.
func (r *SubscriptionRegistry) Scratch(id schema.CorrelationID) (*ScratchRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return b.scratch, true
}

// Find returns the id bound to a structurally equal descriptor.
func (r *SubscriptionRegistry) Find(desc schema.SubscriptionDescriptor) (schema.CorrelationID, bool) {
	fp := desc.Fingerprint()
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byFingerprint[fp]
	return id, ok
}

// Unbind removes the binding and its scratch record. It reports whether anything was removed.
func (r *SubscriptionRegistry) Unbind(id schema.CorrelationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	if cur, ok := r.byFingerprint[b.fingerprint]; ok && cur == id {
		delete(r.byFingerprint, b.fingerprint)
	}
	return true
}

// Len returns the number of live bindings.
func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
