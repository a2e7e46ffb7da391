package fingerprint

import "fmt"

// ------------------------ Hash layout ------------------------
//
//	bits 16-23: anchor frequency bin
//	bits  8-15: target frequency bin
//	bits  0-7 : time distance in retained frames
//
// The window size bounds the bins and the target zone bounds the distance;
// both must be configured to stay within a byte (see landmark.Config.Validate).
const (
	FieldBits = 8
	FieldMask = 1<<FieldBits - 1

	shiftTarget = FieldBits
	shiftAnchor = 2 * FieldBits

	// HashBits is the number of low bits a Hash uses.
	HashBits = 3 * FieldBits
)

// Hash is a packed peak pair.
type Hash uint32

// EncodePair packs the two bins and the distance of pp into a Hash.
func EncodePair(pp PeakPair) Hash {
	return Hash(uint32(pp.Anchor.Index&FieldMask)<<shiftAnchor |
		uint32(pp.Target.Index&FieldMask)<<shiftTarget |
		uint32(pp.Distance&FieldMask))
}

// DecodeHash is the inverse of EncodePair. Amplitudes are not part of a hash
// and come back as zero.
func DecodeHash(h Hash, anchorIndex int) PeakPair {
	anchor, target, distance := h.Fields()
	return PeakPair{
		AnchorIndex: anchorIndex,
		Anchor:      Peak{Index: anchor},
		Target:      Peak{Index: target},
		Distance:    distance,
	}
}

// Fields unpacks the anchor bin, target bin and distance.
func (h Hash) Fields() (anchor, target, distance int) {
	return int(h >> shiftAnchor & FieldMask),
		int(h >> shiftTarget & FieldMask),
		int(h & FieldMask)
}

func (h Hash) String() string {
	return fmt.Sprintf("0x%06x", uint32(h))
}
