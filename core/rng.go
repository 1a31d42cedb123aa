package core

import "math/rand/v2"

// schedulerSalt separates the scheduler stream from every patient stream.
const schedulerSalt uint64 = 0x7363686564756c65

// mix64 is the SplitMix64 output function.
func mix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// newSchedulerSource returns the stream used for injury sampling.
func newSchedulerSource(seed uint64) *rand.PCG {
	return rand.NewPCG(mix64(seed), mix64(seed^schedulerSalt))
}

// newPatientSource returns the private stream of the patient at index. It
// depends only on the run seed and the index, so workers may simulate
// patients in any order.
func newPatientSource(seed uint64, index int) *rand.PCG {
	return rand.NewPCG(mix64(seed), mix64(seed^mix64(uint64(index)+1)))
}

// uniform returns a float64 in [0,1) built from the top 53 bits of one draw.
func uniform(src rand.Source) float64 {
	return float64(src.Uint64()>>11) / (1 << 53)
}
