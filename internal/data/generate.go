package data

import (
	"math"
	"math/rand"
)

// Column names of the synthetic income dataset.
const (
	ColAge         = "age"
	ColEducation   = "education_num"
	ColHours       = "hours_per_week"
	ColCapitalGain = "capital_gain"
	ColSex         = "sex"
	ColRace        = "race"
	ColIncome      = "income"
)

// GenerateSyntheticIncome builds an adult-income-like dataset. sex (1 = male)
// and race (1 = white) are protected attributes and also appear as features.
// sexEffect controls how strongly the favorable label (income > 50k) leans on
// sex; 0 leaves only the indirect hours-per-week proxy.
func GenerateSyntheticIncome(n int, seed int64, sexEffect float64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{
		Features:         make([][]float64, 0, n),
		Labels:           make([]float64, 0, n),
		Protected:        make([][]float64, 0, n),
		FeatureNames:     []string{ColAge, ColEducation, ColHours, ColCapitalGain, ColSex, ColRace},
		ProtectedNames:   []string{ColSex, ColRace},
		FavorableLabel:   1,
		UnfavorableLabel: 0,
	}

	for i := 0; i < n; i++ {
		sex := 0.0
		if rng.Float64() < 0.67 {
			sex = 1
		}
		race := 0.0
		if rng.Float64() < 0.85 {
			race = 1
		}
		age := clamp(38+13*rng.NormFloat64(), 17, 90)
		edu := math.Round(clamp(10+2.5*rng.NormFloat64(), 1, 16))
		hours := math.Round(clamp(40+12*rng.NormFloat64()+4*sex, 1, 99))
		gain := 0.0
		if rng.Float64() < 0.08 {
			gain = math.Log1p(rng.ExpFloat64() * 5000)
		}

		z := -9.3 + 0.045*age + 0.35*edu + 0.04*hours + 0.15*gain + sexEffect*sex + 0.4*race + rng.NormFloat64()
		label := 0.0
		if z > 0 {
			label = 1
		}

		ds.Features = append(ds.Features, []float64{age, edu, hours, gain, sex, race})
		ds.Protected = append(ds.Protected, []float64{sex, race})
		ds.Labels = append(ds.Labels, label)
	}
	return ds
}

// Split shuffles rows with its own seed and returns the first frac of them as
// the first dataset and the rest as the second.
func Split(ds *Dataset, frac float64, seed int64) (*Dataset, *Dataset) {
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(ds.Len())
	cut := int(frac * float64(len(idx)))
	return ds.Subset(idx[:cut]), ds.Subset(idx[cut:])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
