package encoder

// Disposition is the closed set of residue-handling outcomes.
type Disposition string

const (
	// DispositionDiscard drops a residue below the negligible threshold.
	DispositionDiscard Disposition = "discard"
	// DispositionStore retains the residue in the audit ledger for forensics.
	DispositionStore Disposition = "store"
	// DispositionReintegrate feeds the residue back for re-derivation. Only
	// valid when governance explicitly authorizes it.
	DispositionReintegrate Disposition = "reintegrate"
)

// DispositionFor selects how a residue is handled. Reintegration requires an
// explicit governance authorization; without it any non-negligible residue is
// stored for forensic retention.
func DispositionFor(residue Residue, constraints Constraints, reintegrateAuthorized bool) Disposition {
	if residue.Decoherence < constraints.NegligibleThreshold {
		return DispositionDiscard
	}
	if reintegrateAuthorized {
		return DispositionReintegrate
	}
	return DispositionStore
}
