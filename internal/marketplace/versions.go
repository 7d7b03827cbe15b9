package marketplace

import (
	"bytes"
	"fmt"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// versionRegistry keeps an append-only version list per service plus the
// one index spanning services: hash to (sid, index).
type versionRegistry struct {
	lists  map[string][]model.Version
	byHash map[model.Hash]model.VersionRef
}

func newVersionRegistry() versionRegistry {
	return versionRegistry{
		lists:  make(map[string][]model.Version),
		byHash: make(map[model.Hash]model.VersionRef),
	}
}

func (r *versionRegistry) append(s string, index int, v model.Version) error {
	if _, ok := r.byHash[v.Hash]; ok {
		return ErrDuplicateHash
	}
	if index != len(r.lists[s]) {
		return fmt.Errorf("marketplace: version index %d out of sequence for %q", index, s)
	}
	r.lists[s] = append(r.lists[s], v)
	r.byHash[v.Hash] = model.VersionRef{Sid: s, Index: index}
	return nil
}

// CreateServiceVersion appends a version to a service owned by the caller.
// The hash must be unused by every service, not just this one.
func (m *Marketplace) CreateServiceVersion(call Call, s string, hash model.Hash, manifest, manifestProtocol []byte) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	if _, err := m.requireServiceOwner(s, call.From); err != nil {
		return nil, err
	}
	if len(stripPadding(manifest)) == 0 {
		return nil, ErrEmptyManifest
	}
	if len(stripPadding(manifestProtocol)) == 0 {
		return nil, ErrEmptyManifestProtocol
	}
	if _, ok := m.versions.byHash[hash]; ok {
		return nil, ErrDuplicateHash
	}
	return m.commit(call.Now, model.ServiceVersionCreated{
		Sid:              s,
		Index:            len(m.versions.lists[s]),
		Hash:             hash,
		Manifest:         bytes.Clone(manifest),
		ManifestProtocol: bytes.Clone(manifestProtocol),
	}), nil
}

// Version returns the i-th version of sid.
func (m *Marketplace) Version(s string, i int) (model.Version, error) {
	if !m.services.has(s) {
		return model.Version{}, ErrServiceNotFound
	}
	list := m.versions.lists[s]
	if i < 0 || i >= len(list) {
		return model.Version{}, ErrVersionNotFound
	}
	return cloneVersion(list[i]), nil
}

// VersionByHash resolves a content hash to its owning service and version.
func (m *Marketplace) VersionByHash(hash model.Hash) (model.VersionRef, model.Version, error) {
	ref, ok := m.versions.byHash[hash]
	if !ok {
		return model.VersionRef{}, model.Version{}, ErrVersionNotFound
	}
	return ref, cloneVersion(m.versions.lists[ref.Sid][ref.Index]), nil
}

func (m *Marketplace) VersionsCount(s string) (int, error) {
	if !m.services.has(s) {
		return 0, ErrServiceNotFound
	}
	return len(m.versions.lists[s]), nil
}

// Versions returns every version of sid in creation order.
func (m *Marketplace) Versions(s string) ([]model.Version, error) {
	if !m.services.has(s) {
		return nil, ErrServiceNotFound
	}
	list := m.versions.lists[s]
	out := make([]model.Version, len(list))
	for i, v := range list {
		out[i] = cloneVersion(v)
	}
	return out, nil
}

// stripPadding drops the NUL padding fixed-width encodings leave behind.
func stripPadding(b []byte) []byte {
	return bytes.Trim(b, "\x00")
}

func cloneVersion(v model.Version) model.Version {
	v.Manifest = bytes.Clone(v.Manifest)
	v.ManifestProtocol = bytes.Clone(v.ManifestProtocol)
	return v
}
