// Copyright 2025 ScyllaDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package truncgamma computes moments of, calibrates, and samples from a
// gamma distribution truncated to an interval [A, B]. Calibration finds the
// untruncated shape and scale whose truncated mean and coefficient of
// variation match given targets; sampling is exact inverse-transform
// sampling restricted to the interval.
package truncgamma

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mathext"
)

// GammaParams holds the shape and scale of an untruncated gamma
// distribution.
type GammaParams struct {
	Alpha float64 // shape
	Theta float64 // scale
}

func (p GammaParams) Validate() error {
	if p.Alpha <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "alpha must be greater than zero, got %v", p.Alpha)
	}
	if p.Theta <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "theta must be greater than zero, got %v", p.Theta)
	}
	return nil
}

func (p GammaParams) String() string {
	return fmt.Sprintf("{alpha=%g, theta=%g}", p.Alpha, p.Theta)
}

// Bounds is the truncation interval [A, B].
type Bounds struct {
	A float64
	B float64
}

func (b Bounds) Validate() error {
	if b.A < 0 {
		return errors.Wrapf(ErrInvalidParameter, "lower bound A must be greater than or equal to zero, got %v", b.A)
	}
	if b.B <= b.A {
		return errors.Wrapf(ErrInvalidParameter, "upper bound B must be greater than A, got A=%v B=%v", b.A, b.B)
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g, %g]", b.A, b.B)
}

// Model is a gamma distribution truncated to [A, B]. It is immutable: every
// method is a pure function of the four stored values and recomputes from
// scratch on each call, so a Model is safe to share and cheap to discard.
type Model struct {
	params GammaParams
	bounds Bounds
}

// NewModel validates alpha, theta, A and B in that order and returns a
// model over the four values stored verbatim. The first violated constraint
// is reported as an error wrapping ErrInvalidParameter.
func NewModel(alpha, theta, a, b float64) (Model, error) {
	m := Model{
		params: GammaParams{Alpha: alpha, Theta: theta},
		bounds: Bounds{A: a, B: b},
	}
	if err := m.params.Validate(); err != nil {
		return Model{}, err
	}
	if err := m.bounds.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m Model) Params() GammaParams { return m.params }

func (m Model) Bounds() Bounds { return m.bounds }

// moments returns the first and second raw moments of the truncated
// distribution. Raising the shape by k absorbs x^k from the gamma density,
// so m_k = (alpha)_k * theta^k * (P(alpha+k, zB) - P(alpha+k, zA)) / mass
// with P the regularized lower incomplete gamma function and mass the
// untruncated probability inside [A, B]. A numerically zero mass is not
// guarded: the division yields NaN or infinities that propagate to the
// caller.
func moments(alpha, theta, a, b float64) (m1, m2 float64) {
	zA, zB := a/theta, b/theta
	mass := mathext.GammaIncReg(alpha, zB) - mathext.GammaIncReg(alpha, zA)
	m1 = alpha * theta *
		(mathext.GammaIncReg(alpha+1, zB) - mathext.GammaIncReg(alpha+1, zA)) / mass
	m2 = alpha * (alpha + 1) * theta * theta *
		(mathext.GammaIncReg(alpha+2, zB) - mathext.GammaIncReg(alpha+2, zA)) / mass
	return m1, m2
}

// Mean returns the first raw moment of the truncated distribution.
func (m Model) Mean() float64 {
	m1, _ := moments(m.params.Alpha, m.params.Theta, m.bounds.A, m.bounds.B)
	return m1
}

// SecondMoment returns the second raw moment of the truncated distribution.
func (m Model) SecondMoment() float64 {
	_, m2 := moments(m.params.Alpha, m.params.Theta, m.bounds.A, m.bounds.B)
	return m2
}

func (m Model) Variance() float64 {
	m1, m2 := moments(m.params.Alpha, m.params.Theta, m.bounds.A, m.bounds.B)
	return m2 - m1*m1
}

// CoefficientOfVariation returns the standard deviation over the mean. It
// is NaN when the truncated mean is zero or the truncation is degenerate.
func (m Model) CoefficientOfVariation() float64 {
	m1, m2 := moments(m.params.Alpha, m.params.Theta, m.bounds.A, m.bounds.B)
	return math.Sqrt(m2-m1*m1) / m1
}

// Mass returns the untruncated gamma probability inside [A, B], the
// normalizing denominator of every truncated moment. Values near zero mean
// the truncation is degenerate and moment results are unreliable.
func (m Model) Mass() float64 {
	return mathext.GammaIncReg(m.params.Alpha, m.bounds.B/m.params.Theta) -
		mathext.GammaIncReg(m.params.Alpha, m.bounds.A/m.params.Theta)
}

// CDF returns the cumulative distribution function of the truncated
// distribution: 0 at or below A, 1 at or above B.
func (m Model) CDF(x float64) float64 {
	switch {
	case x <= m.bounds.A:
		return 0
	case x >= m.bounds.B:
		return 1
	}
	pA := mathext.GammaIncReg(m.params.Alpha, m.bounds.A/m.params.Theta)
	return (mathext.GammaIncReg(m.params.Alpha, x/m.params.Theta) - pA) / m.Mass()
}

// Quantile returns the inverse CDF of the truncated distribution. The
// result always lies in [A, B]. Quantile panics when p is outside [0, 1].
func (m Model) Quantile(p float64) float64 {
	if p < 0 || p > 1 {
		panic("truncgamma: percentile out of range [0, 1]")
	}
	pA := mathext.GammaIncReg(m.params.Alpha, m.bounds.A/m.params.Theta)
	x := m.params.Theta * mathext.GammaIncRegInv(m.params.Alpha, pA+p*m.Mass())
	return min(max(x, m.bounds.A), m.bounds.B)
}

// Rand draws one variate from the truncated distribution using the supplied
// source.
func (m Model) Rand(rnd *rand.Rand) float64 {
	return m.Quantile(rnd.Float64())
}

func (m Model) String() string {
	return fmt.Sprintf("TruncatedGamma{alpha=%g, theta=%g, A=%g, B=%g}",
		m.params.Alpha, m.params.Theta, m.bounds.A, m.bounds.B)
}
