package marketplace

import (
	"sort"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// accessGate holds the contract-level roles: a single owner and a set of
// pausers. It is independent of per-service ownership.
type accessGate struct {
	owner   model.Address
	pausers map[model.Address]bool
	paused  bool
}

func newAccessGate() accessGate {
	return accessGate{pausers: make(map[model.Address]bool)}
}

func (g *accessGate) whenNotPaused() error {
	if g.paused {
		return ErrPaused
	}
	return nil
}

func (g *accessGate) onlyPauser(a model.Address) error {
	if !g.pausers[a] {
		return ErrNotPauser
	}
	return nil
}

func (g *accessGate) onlyOwner(a model.Address) error {
	if g.owner == "" || g.owner != a {
		return ErrNotOwner
	}
	return nil
}

// Bootstrap makes the caller the marketplace owner and its first pauser.
func (m *Marketplace) Bootstrap(call Call) ([]model.Event, error) {
	if m.gate.owner != "" {
		return nil, ErrAlreadyBootstrapped
	}
	if call.From.IsZero() {
		return nil, ErrZeroAddress
	}
	return m.commit(call.Now,
		model.OwnershipTransferred{PreviousOwner: model.ZeroAddress, NewOwner: call.From},
		model.PauserAdded{Account: call.From},
	), nil
}

// TransferOwnership hands the marketplace owner role to newOwner.
func (m *Marketplace) TransferOwnership(call Call, newOwner model.Address) ([]model.Event, error) {
	if err := m.gate.onlyOwner(call.From); err != nil {
		return nil, err
	}
	if newOwner.IsZero() {
		return nil, ErrZeroAddress
	}
	return m.commit(call.Now, model.OwnershipTransferred{PreviousOwner: m.gate.owner, NewOwner: newOwner}), nil
}

// AddPauser grants the pauser role. Only pausers may grant it.
func (m *Marketplace) AddPauser(call Call, account model.Address) ([]model.Event, error) {
	if err := m.gate.onlyPauser(call.From); err != nil {
		return nil, err
	}
	if account.IsZero() {
		return nil, ErrZeroAddress
	}
	if m.gate.pausers[account] {
		return nil, ErrAlreadyPauser
	}
	return m.commit(call.Now, model.PauserAdded{Account: account}), nil
}

// RemovePauser revokes the pauser role from account. Only the owner may
// revoke it from someone else.
func (m *Marketplace) RemovePauser(call Call, account model.Address) ([]model.Event, error) {
	if err := m.gate.onlyOwner(call.From); err != nil {
		return nil, err
	}
	if !m.gate.pausers[account] {
		return nil, ErrNotPauser
	}
	return m.commit(call.Now, model.PauserRemoved{Account: account}), nil
}

// RenouncePauser drops the caller's own pauser role.
func (m *Marketplace) RenouncePauser(call Call) ([]model.Event, error) {
	if err := m.gate.onlyPauser(call.From); err != nil {
		return nil, err
	}
	return m.commit(call.Now, model.PauserRemoved{Account: call.From}), nil
}

// Pause halts every mutating service, version, offer and purchase
// operation until Unpause.
func (m *Marketplace) Pause(call Call) ([]model.Event, error) {
	if err := m.gate.onlyPauser(call.From); err != nil {
		return nil, err
	}
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	return m.commit(call.Now, model.Paused{Account: call.From}), nil
}

func (m *Marketplace) Unpause(call Call) ([]model.Event, error) {
	if err := m.gate.onlyPauser(call.From); err != nil {
		return nil, err
	}
	if !m.gate.paused {
		return nil, ErrNotPaused
	}
	return m.commit(call.Now, model.Unpaused{Account: call.From}), nil
}

func (m *Marketplace) Owner() model.Address          { return m.gate.owner }
func (m *Marketplace) IsOwner(a model.Address) bool  { return m.gate.owner != "" && m.gate.owner == a }
func (m *Marketplace) IsPauser(a model.Address) bool { return m.gate.pausers[a] }
func (m *Marketplace) Paused() bool                  { return m.gate.paused }

// Pausers returns the pauser set in address order.
func (m *Marketplace) Pausers() []model.Address {
	out := make([]model.Address, 0, len(m.gate.pausers))
	for a := range m.gate.pausers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
