// Package manifest turns a version's manifest and manifest protocol into a
// location a client can fetch. It is presentation only: the ledger stores
// manifests as opaque bytes and never rejects one based on this package.
package manifest

import (
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Kind classifies a resolved manifest.
type Kind string

const (
	KindIPFS   Kind = "ipfs"
	KindHTTP   Kind = "http"
	KindOpaque Kind = "opaque"
)

// Location describes where a manifest lives.
type Location struct {
	Protocol string `json:"protocol"`
	Kind     Kind   `json:"kind"`
	Raw      string `json:"raw"`

	CID          string `json:"cid,omitempty"`
	CIDVersion   uint64 `json:"cid_version,omitempty"`
	Codec        string `json:"codec,omitempty"`
	HashFunction string `json:"hash_function,omitempty"`

	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// Resolve classifies manifest according to protocol. An ipfs manifest that
// is not a valid CID, or an http manifest that is not an absolute URL, is
// reported as opaque with Error set.
func Resolve(protocol, manifest []byte, gateway string) Location {
	loc := Location{
		Protocol: string(protocol),
		Kind:     KindOpaque,
		Raw:      string(manifest),
	}
	switch strings.ToLower(strings.TrimSpace(loc.Protocol)) {
	case "ipfs":
		resolveIPFS(&loc, gateway)
	case "http", "https":
		resolveHTTP(&loc)
	}
	return loc
}

func resolveIPFS(loc *Location, gateway string) {
	raw := strings.TrimSpace(loc.Raw)
	raw = strings.TrimPrefix(raw, "ipfs://")
	raw = strings.TrimPrefix(raw, "/ipfs/")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	id, err := cid.Decode(raw)
	if err != nil {
		loc.Error = err.Error()
		return
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		loc.Error = err.Error()
		return
	}
	loc.Kind = KindIPFS
	loc.CID = id.String()
	loc.CIDVersion = id.Version()
	loc.Codec = codecName(id.Type())
	loc.HashFunction = dec.Name
	if gateway != "" {
		loc.URL = strings.TrimRight(gateway, "/") + "/" + id.String()
	}
}

func resolveHTTP(loc *Location) {
	u, err := url.Parse(strings.TrimSpace(loc.Raw))
	if err != nil {
		loc.Error = err.Error()
		return
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		loc.Error = "manifest is not an absolute http url"
		return
	}
	loc.Kind = KindHTTP
	loc.URL = u.String()
}

func codecName(c uint64) string {
	if name, ok := cid.CodecToStr[c]; ok {
		return name
	}
	return "unknown"
}

// CIDFor returns the CIDv1 (raw codec, sha2-256) of data, the identifier
// an ipfs manifest for data would carry.
func CIDFor(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
