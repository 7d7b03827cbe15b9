package marketplace

import (
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/sid"
)

// serviceRegistry maps sids to services and remembers creation order for
// indexed access. Services are never deleted.
type serviceRegistry struct {
	bySid map[string]*model.Service
	order []string
}

func newServiceRegistry() serviceRegistry {
	return serviceRegistry{bySid: make(map[string]*model.Service)}
}

func (r *serviceRegistry) has(s string) bool {
	_, ok := r.bySid[s]
	return ok
}

func (r *serviceRegistry) get(s string) (*model.Service, bool) {
	svc, ok := r.bySid[s]
	return svc, ok
}

func (r *serviceRegistry) insert(s string, owner model.Address, at model.Timestamp) error {
	if r.has(s) {
		return ErrDuplicateSid
	}
	r.bySid[s] = &model.Service{Sid: s, Owner: owner, CreateTime: at}
	r.order = append(r.order, s)
	return nil
}

func (r *serviceRegistry) setOwner(s string, owner model.Address) error {
	svc, ok := r.bySid[s]
	if !ok {
		return ErrServiceNotFound
	}
	svc.Owner = owner
	return nil
}

// CreateService registers sid with the caller as owner.
func (m *Marketplace) CreateService(call Call, serviceID []byte) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	if err := sid.Validate(serviceID); err != nil {
		return nil, wrap(ErrInvalidSid, err)
	}
	s := string(serviceID)
	if m.services.has(s) {
		return nil, ErrDuplicateSid
	}
	return m.commit(call.Now, model.ServiceCreated{Sid: s, Owner: call.From}), nil
}

// TransferServiceOwnership hands a service to newOwner. Existing purchases
// keep their expiration; only future revenue goes to the new owner.
func (m *Marketplace) TransferServiceOwnership(call Call, s string, newOwner model.Address) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	svc, err := m.requireServiceOwner(s, call.From)
	if err != nil {
		return nil, err
	}
	if newOwner.IsZero() {
		return nil, ErrZeroAddress
	}
	if newOwner == svc.Owner {
		return nil, ErrSameOwner
	}
	return m.commit(call.Now, model.ServiceOwnershipTransferred{
		Sid:           s,
		PreviousOwner: svc.Owner,
		NewOwner:      newOwner,
	}), nil
}

// Service returns the service registered under sid.
func (m *Marketplace) Service(s string) (model.Service, error) {
	svc, ok := m.services.get(s)
	if !ok {
		return model.Service{}, ErrServiceNotFound
	}
	return *svc, nil
}

// ServiceAt returns the i-th created service.
func (m *Marketplace) ServiceAt(i int) (model.Service, error) {
	if i < 0 || i >= len(m.services.order) {
		return model.Service{}, ErrServiceNotFound
	}
	return *m.services.bySid[m.services.order[i]], nil
}

func (m *Marketplace) ServicesCount() int { return len(m.services.order) }

// Services returns up to limit services starting at offset, in creation
// order. A non-positive limit returns everything after offset.
func (m *Marketplace) Services(offset, limit int) []model.Service {
	lo, hi := window(len(m.services.order), offset, limit)
	out := make([]model.Service, 0, hi-lo)
	for _, s := range m.services.order[lo:hi] {
		out = append(out, *m.services.bySid[s])
	}
	return out
}

// IsServiceOwner reports whether a currently owns sid.
func (m *Marketplace) IsServiceOwner(s string, a model.Address) bool {
	svc, ok := m.services.get(s)
	return ok && svc.Owner == a
}

func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
