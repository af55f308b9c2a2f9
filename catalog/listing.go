// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package catalog

import (
	"fmt"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/codec"
	"github.com/fxamacker/cbor/v2"
)

// A Listing is the exchangeable description of the endpoints of a catalog.
// Unlike the JSON descriptor of a signature, a listing includes the output
// and return value slots, so that a client can decode results.
type Listing []Entry

// An Entry describes a single endpoint in a Listing.
type Entry struct {
	Name  string     `cbor:"name"`
	ID    fibre.ID   `cbor:"id"`
	Slots []SlotInfo `cbor:"slots"`
}

// SlotInfo describes one slot of an endpoint signature.
type SlotInfo struct {
	Name  string `cbor:"name"`
	Mode  string `cbor:"mode"`
	Codec string `cbor:"codec"`
}

// The listing uses Core Deterministic Encoding, so the same catalog always
// encodes to the same bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("catalog: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("catalog: CBOR decoder initialization failed: " + err.Error())
	}
}

// Listing returns a listing of the endpoints in c, in lexicographic order by
// name.
func (c Catalog) Listing() Listing {
	out := make(Listing, 0, len(c.eps))
	for _, name := range c.Names() {
		out = append(out, NewEntry(c.eps[name].Signature()))
	}
	return out
}

// Encode encodes the listing of c in binary format.
func (c Catalog) Encode() ([]byte, error) { return c.Listing().Encode() }

// NewEntry constructs a listing entry for sig.
func NewEntry(sig *fibre.Signature) Entry {
	e := Entry{Name: sig.Name(), ID: sig.ID()}
	for _, s := range sig.Slots() {
		e.Slots = append(e.Slots, SlotInfo{Name: s.Name, Mode: s.Mode.String(), Codec: s.Codec.Name()})
	}
	return e
}

// Encode encodes l in binary format (CBOR).
func (l Listing) Encode() ([]byte, error) { return encMode.Marshal(l) }

// DecodeListing decodes data as a listing in binary format.
func DecodeListing(data []byte) (Listing, error) {
	var l Listing
	if err := decMode.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return l, nil
}

// Signature reconstructs the signature described by e, resolving codec names
// in reg. It reports an error if a codec is unknown, or if the resulting
// signature does not have the ID recorded in e.
func (e Entry) Signature(reg *codec.Registry) (*fibre.Signature, error) {
	slots := make([]fibre.Slot, len(e.Slots))
	for i, si := range e.Slots {
		mode, err := fibre.ParseMode(si.Mode)
		if err != nil {
			return nil, fmt.Errorf("%s: slot %q: %w", e.Name, si.Name, err)
		}
		c, ok := reg.Lookup(si.Codec)
		if !ok {
			return nil, fmt.Errorf("%s: slot %q: unknown codec %q", e.Name, si.Name, si.Codec)
		}
		slots[i] = fibre.Slot{Name: si.Name, Mode: mode, Codec: c}
	}
	sig, err := fibre.NewSignature(e.Name, slots...)
	if err != nil {
		return nil, err
	}
	if sig.ID() != e.ID {
		return nil, fmt.Errorf("%s: signature ID %v does not match listing ID %v", e.Name, sig.ID(), e.ID)
	}
	return sig, nil
}

// Find returns the entry in l with the given name, and reports whether it
// was found.
func (l Listing) Find(name string) (Entry, bool) {
	for _, e := range l {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Signatures reconstructs the signatures of every entry in l.
// See [Entry.Signature].
func (l Listing) Signatures(reg *codec.Registry) ([]*fibre.Signature, error) {
	sigs := make([]*fibre.Signature, len(l))
	for i, e := range l {
		sig, err := e.Signature(reg)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}
	return sigs, nil
}
