// Package index builds the scene-wide coherent index: a composite image
// whose three bands encode, for every texel, which observation (and
// which pixel of that observation) it came from (spec.md §4.3, §6).
package index

// Reserved observation-identifier values, spec.md §6.
const (
	NoData       = 0
	HoldConstant = 1
	// LegacyHoldConstant is 65535 under strict mode; under legacy mode it
	// instead means "invalid" while 1 becomes a valid observation id.
	LegacyHoldConstant = 65535
	MinValidObs        = 2
	MaxValidObs        = 65534
)

// BitLayout selects between the strict and legacy interpretations of the
// reserved sentinel values 1 and 65535 (spec.md §9 open question: the
// treatment of legacy invalid-index values is dataset-specific).
type BitLayout struct {
	Legacy bool
}

// Encode packs an observation id and source pixel coordinates into the
// three float32 bands of a coherent-index image.
func Encode(obsID, row, col uint16) [3]float32 {
	return [3]float32{float32(obsID), float32(row), float32(col)}
}

// Classification describes what an index entry means once decoded.
type Classification int

const (
	ClassValid Classification = iota
	ClassNoData
	ClassHoldConstant
)

// Decode classifies a raw observation-id band value under the
// configured bit layout, per spec.md §6's reserved-value table.
func (b BitLayout) Decode(obsID uint16) (Classification, uint16) {
	if b.Legacy {
		switch obsID {
		case 0:
			return ClassNoData, 0
		case LegacyHoldConstant:
			return ClassNoData, 0
		default:
			return ClassValid, obsID
		}
	}
	switch {
	case obsID == NoData:
		return ClassNoData, 0
	case obsID == HoldConstant || obsID == LegacyHoldConstant:
		return ClassHoldConstant, 0
	case obsID >= MinValidObs && obsID <= MaxValidObs:
		return ClassValid, obsID
	default:
		return ClassNoData, 0
	}
}
