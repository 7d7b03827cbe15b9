package model

import (
	"fmt"
	"math/big"
)

// EventKind names a notification emitted by a successful operation.
type EventKind string

const (
	KindServiceCreated              EventKind = "ServiceCreated"
	KindServiceOwnershipTransferred EventKind = "ServiceOwnershipTransferred"
	KindServiceVersionCreated       EventKind = "ServiceVersionCreated"
	KindServiceOfferCreated         EventKind = "ServiceOfferCreated"
	KindServiceOfferDisabled        EventKind = "ServiceOfferDisabled"
	KindServicePurchased            EventKind = "ServicePurchased"
	KindPaused                      EventKind = "Paused"
	KindUnpaused                    EventKind = "Unpaused"
	KindPauserAdded                 EventKind = "PauserAdded"
	KindPauserRemoved               EventKind = "PauserRemoved"
	KindOwnershipTransferred        EventKind = "OwnershipTransferred"
)

// Event is a notification. Every state change of the marketplace is fully
// described by the events it emits, in order.
type Event interface {
	Kind() EventKind
}

type ServiceCreated struct {
	Sid   string  `json:"sid" cbor:"1,keyasint"`
	Owner Address `json:"owner" cbor:"2,keyasint"`
}

type ServiceOwnershipTransferred struct {
	Sid           string  `json:"sid" cbor:"1,keyasint"`
	PreviousOwner Address `json:"previous_owner" cbor:"2,keyasint"`
	NewOwner      Address `json:"new_owner" cbor:"3,keyasint"`
}

type ServiceVersionCreated struct {
	Sid              string `json:"sid" cbor:"1,keyasint"`
	Index            int    `json:"index" cbor:"2,keyasint"`
	Hash             Hash   `json:"hash" cbor:"3,keyasint"`
	Manifest         []byte `json:"manifest" cbor:"4,keyasint"`
	ManifestProtocol []byte `json:"manifest_protocol" cbor:"5,keyasint"`
}

type ServiceOfferCreated struct {
	Sid      string   `json:"sid" cbor:"1,keyasint"`
	Index    int      `json:"index" cbor:"2,keyasint"`
	Price    *big.Int `json:"price" cbor:"3,keyasint"`
	Duration Duration `json:"duration" cbor:"4,keyasint"`
}

type ServiceOfferDisabled struct {
	Sid   string `json:"sid" cbor:"1,keyasint"`
	Index int    `json:"index" cbor:"2,keyasint"`
}

type ServicePurchased struct {
	Sid        string   `json:"sid" cbor:"1,keyasint"`
	OfferIndex int      `json:"offer_index" cbor:"2,keyasint"`
	Purchaser  Address  `json:"purchaser" cbor:"3,keyasint"`
	Price      *big.Int `json:"price" cbor:"4,keyasint"`
	Duration   Duration `json:"duration" cbor:"5,keyasint"`
	Expire     Expiry   `json:"expire" cbor:"6,keyasint"`
}

type Paused struct {
	Account Address `json:"account" cbor:"1,keyasint"`
}

type Unpaused struct {
	Account Address `json:"account" cbor:"1,keyasint"`
}

type PauserAdded struct {
	Account Address `json:"account" cbor:"1,keyasint"`
}

type PauserRemoved struct {
	Account Address `json:"account" cbor:"1,keyasint"`
}

// OwnershipTransferred concerns the contract owner, not a service owner.
type OwnershipTransferred struct {
	PreviousOwner Address `json:"previous_owner" cbor:"1,keyasint"`
	NewOwner      Address `json:"new_owner" cbor:"2,keyasint"`
}

func (ServiceCreated) Kind() EventKind              { return KindServiceCreated }
func (ServiceOwnershipTransferred) Kind() EventKind { return KindServiceOwnershipTransferred }
func (ServiceVersionCreated) Kind() EventKind       { return KindServiceVersionCreated }
func (ServiceOfferCreated) Kind() EventKind         { return KindServiceOfferCreated }
func (ServiceOfferDisabled) Kind() EventKind        { return KindServiceOfferDisabled }
func (ServicePurchased) Kind() EventKind            { return KindServicePurchased }
func (Paused) Kind() EventKind                      { return KindPaused }
func (Unpaused) Kind() EventKind                    { return KindUnpaused }
func (PauserAdded) Kind() EventKind                 { return KindPauserAdded }
func (PauserRemoved) Kind() EventKind               { return KindPauserRemoved }
func (OwnershipTransferred) Kind() EventKind        { return KindOwnershipTransferred }

// NewEvent returns a zero event of the given kind, ready to be decoded into.
func NewEvent(kind EventKind) (Event, error) {
	switch kind {
	case KindServiceCreated:
		return &ServiceCreated{}, nil
	case KindServiceOwnershipTransferred:
		return &ServiceOwnershipTransferred{}, nil
	case KindServiceVersionCreated:
		return &ServiceVersionCreated{}, nil
	case KindServiceOfferCreated:
		return &ServiceOfferCreated{}, nil
	case KindServiceOfferDisabled:
		return &ServiceOfferDisabled{}, nil
	case KindServicePurchased:
		return &ServicePurchased{}, nil
	case KindPaused:
		return &Paused{}, nil
	case KindUnpaused:
		return &Unpaused{}, nil
	case KindPauserAdded:
		return &PauserAdded{}, nil
	case KindPauserRemoved:
		return &PauserRemoved{}, nil
	case KindOwnershipTransferred:
		return &OwnershipTransferred{}, nil
	}
	return nil, fmt.Errorf("model: unknown event kind %q", kind)
}
