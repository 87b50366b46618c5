package experiment

import "math"

// Numeric policy for the p-value approximation. The regularized
// incomplete beta is evaluated with the continued-fraction expansion
// (Numerical Recipes betacf, modified Lentz), capped at betaMaxIter
// iterations with an early exit once successive factors are within
// betaEpsilon of 1. Results are not bit-exact across implementations;
// tests assert against t-table values within 1e-3.
const (
	betaMaxIter = 200
	betaEpsilon = 1e-10

	// ciCritical is the fixed 95% critical value (normal
	// approximation, not the exact t quantile). Retained from the
	// original analysis pipeline; replacing it with exact t intervals
	// would change historical experiment conclusions.
	ciCritical = 1.96

	// SignificanceLevel is the p-value threshold for flagging a result.
	SignificanceLevel = 0.05
)

// TTestResult holds a two-sample Welch's t-test outcome.
type TTestResult struct {
	T  float64 // t-statistic, (treatment mean - control mean) / se
	DF float64 // Welch-Satterthwaite degrees of freedom
	P  float64 // two-tailed p-value
	// EffectSize is Cohen's d on the pooled standard deviation.
	EffectSize float64
	// CILower/CIUpper bound the mean difference at 95% (fixed z).
	CILower float64
	CIUpper float64

	ControlMean   float64
	TreatmentMean float64
}

// WelchTTest runs an unequal-variance two-sample t-test of treatment
// against control. Returns false when either sample has fewer than two
// points or both variances are zero (no test possible).
func WelchTTest(control, treatment []float64) (TTestResult, bool) {
	n1, n2 := float64(len(control)), float64(len(treatment))
	if n1 < 2 || n2 < 2 {
		return TTestResult{}, false
	}

	m1, v1 := meanVariance(control)
	m2, v2 := meanVariance(treatment)

	se2 := v1/n1 + v2/n2
	if se2 == 0 {
		return TTestResult{}, false
	}
	se := math.Sqrt(se2)
	t := (m2 - m1) / se

	// Welch-Satterthwaite degrees of freedom.
	df := se2 * se2 / ((v1*v1)/(n1*n1*(n1-1)) + (v2*v2)/(n2*n2*(n2-1)))

	result := TTestResult{
		T:             t,
		DF:            df,
		P:             tTestPValue(t, df),
		EffectSize:    cohensD(m1, v1, n1, m2, v2, n2),
		CILower:       (m2 - m1) - ciCritical*se,
		CIUpper:       (m2 - m1) + ciCritical*se,
		ControlMean:   m1,
		TreatmentMean: m2,
	}
	return result, true
}

// Significant reports whether the test cleared the significance level.
func (r TTestResult) Significant() bool {
	return r.P < SignificanceLevel
}

// meanVariance returns the sample mean and (n-1) variance.
func meanVariance(xs []float64) (mean, variance float64) {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, ss / (n - 1)
}

// cohensD is the standardized effect size on the pooled standard
// deviation; signed so a treatment reduction comes out negative.
func cohensD(m1, v1, n1, m2, v2, n2 float64) float64 {
	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))
	if pooled == 0 {
		return 0
	}
	return (m2 - m1) / pooled
}

// tTestPValue converts a t-statistic to a two-tailed p-value through
// the identity P(|T| > t) = I_{df/(df+t²)}(df/2, 1/2).
func tTestPValue(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	x := df / (df + t*t)
	p := regularizedIncompleteBeta(df/2, 0.5, x)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// regularizedIncompleteBeta evaluates I_x(a, b).
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lg1, _ := math.Lgamma(a + b)
	lg2, _ := math.Lgamma(a)
	lg3, _ := math.Lgamma(b)
	front := math.Exp(lg1 - lg2 - lg3 + a*math.Log(x) + b*math.Log(1-x))

	// The continued fraction converges fastest for x below the split
	// point; use the symmetry relation above it.
	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction evaluates the continued fraction for the
// incomplete beta function by the modified Lentz method.
func betaContinuedFraction(a, b, x float64) float64 {
	const tiny = 1e-30

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= betaMaxIter; m++ {
		m2 := float64(2 * m)
		fm := float64(m)

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < betaEpsilon {
			break
		}
	}
	return h
}
