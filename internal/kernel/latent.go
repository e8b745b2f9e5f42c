package kernel

// LatentSlot is a decaying confidence-bearing feature vector for one
// modality. Confidence is monotonically non-increasing between updates.
type LatentSlot struct {
	Values     []float32
	Confidence float32
	CreatedAt  Tick
	Modality   Modality
	DecayRate  float32
}

// pruneConfidence is the floor below which a slot is considered dead.
const pruneConfidence = 0.05

// LatentField is the set of live latent slots keyed by modality-scoped id.
type LatentField struct {
	Slots map[string]LatentSlot
}

// NewLatentField returns an empty field.
func NewLatentField() LatentField {
	return LatentField{Slots: make(map[string]LatentSlot)}
}

// Decay applies one tick of exponential confidence decay to every slot and
// prunes slots that fall below the floor.
func (f *LatentField) Decay() {
	for key, slot := range f.Slots {
		slot.Confidence *= 1.0 - slot.DecayRate
		if slot.Confidence <= pruneConfidence {
			delete(f.Slots, key)
			continue
		}
		f.Slots[key] = slot
	}
}

// GlobalUncertainty derives the field's aggregate uncertainty:
// 1 - mean(confidence) over live slots, 0 for an empty field.
func (f *LatentField) GlobalUncertainty() float32 {
	if len(f.Slots) == 0 {
		return 0
	}
	var sum float32
	for _, slot := range f.Slots {
		sum += slot.Confidence
	}
	u := 1.0 - sum/float32(len(f.Slots))
	if u < 0 {
		return 0
	}
	return u
}

// clone returns a deep copy of the field for snapshots.
func (f *LatentField) clone() LatentField {
	out := NewLatentField()
	for key, slot := range f.Slots {
		cp := slot
		cp.Values = append([]float32(nil), slot.Values...)
		out.Slots[key] = cp
	}
	return out
}
