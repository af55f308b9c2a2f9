// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// An ID identifies an endpoint on the wire. The ID of an endpoint is derived
// from the content of its signature, so it is stable across restarts and
// changes whenever the wire contract of the endpoint changes.
type ID uint32

func (id ID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

// idDomainKey is the BLAKE3 key for endpoint identities: the ASCII text
// "fibre.endpoint" zero-padded to 32 bytes.
var idDomainKey = [32]byte{
	'f', 'i', 'b', 'r', 'e', '.', 'e', 'n', 'd', 'p', 'o', 'i', 'n', 't', 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// signatureID computes the ID for sig. The hash covers the function name and
// the mode, name, and codec of every slot in order, each field framed by its
// length so that distinct signatures cannot render the same input.
func signatureID(sig *Signature) ID {
	h, err := blake3.NewKeyed(idDomainKey[:])
	if err != nil {
		panic(fmt.Sprintf("blake3 keyed hash: %v", err)) // the key has a fixed valid size
	}
	var buf []byte
	field := func(s string) {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	field(sig.name)
	for _, s := range sig.slots {
		buf = append(buf, byte(s.Mode))
		field(s.Name)
		field(s.Codec.Name())
	}
	h.Write(buf)
	return ID(binary.LittleEndian.Uint32(h.Sum(nil)))
}
