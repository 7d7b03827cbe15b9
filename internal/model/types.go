// Package model defines domain types used by the service.
package model

import "math/big"

// Service is a registered, ownable marketplace entry keyed by its sid.
type Service struct {
	Sid        string    `json:"sid"`
	Owner      Address   `json:"owner"`
	CreateTime Timestamp `json:"create_time"`
}

// Version is one immutable content release of a service.
type Version struct {
	Hash             Hash      `json:"hash"`
	Manifest         []byte    `json:"manifest"`
	ManifestProtocol []byte    `json:"manifest_protocol"`
	CreateTime       Timestamp `json:"create_time"`
}

// VersionRef locates a version by its owning service and list position.
type VersionRef struct {
	Sid   string `json:"sid"`
	Index int    `json:"index"`
}

// Offer is a priced access grant. Active only ever goes from true to false.
type Offer struct {
	Price      *big.Int  `json:"price"`
	Duration   Duration  `json:"duration"`
	Active     bool      `json:"active"`
	CreateTime Timestamp `json:"create_time"`
}

// Purchase is a purchaser's access window against one service.
type Purchase struct {
	Purchaser  Address   `json:"purchaser"`
	Expire     Expiry    `json:"expire"`
	CreateTime Timestamp `json:"create_time"`
}

// Amount returns a copy of v, or zero when v is nil.
func Amount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
