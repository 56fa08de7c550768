package core

// Proton mass for charge calculations
const ProtonMass = 1.00727646688

// NeutralMass returns the uncharged mass of the precursor, or 0 when the
// charge state is unknown.
func (p Precursor) NeutralMass() float64 {
	if p.Charge == 0 {
		return 0
	}
	return (p.MZ - ProtonMass) * float64(p.Charge)
}
