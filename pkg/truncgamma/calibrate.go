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

package truncgamma

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
)

const (
	// calibrationTol bounds the relative moment residuals accepted as
	// converged.
	calibrationTol = 1e-8

	// solverPenalty replaces non-finite objective values so the simplex can
	// retreat from regions where the truncated moments degenerate.
	solverPenalty = 1e12

	// nmMaxIterations caps the simplex stage. Strong truncation can put the
	// method-of-moments guess several orders of magnitude off in log-space,
	// so the cap is generous; stalled descents exit much earlier through the
	// optimizer's function-convergence check.
	nmMaxIterations = 20000

	newtonMaxSteps = 25
	jacobianStep   = 1e-7
)

// Target is the truncated mean and coefficient of variation that calibration
// must reproduce.
type Target struct {
	Mean float64
	CV   float64
}

func (t Target) Validate() error {
	if t.Mean <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "target mean must be greater than zero, got %v", t.Mean)
	}
	if t.CV <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "target cv must be greater than zero, got %v", t.CV)
	}
	return nil
}

func (t Target) String() string {
	return fmt.Sprintf("{mean=%g, cv=%g}", t.Mean, t.CV)
}

// Calibrate finds untruncated gamma parameters whose [A, B]-truncated mean
// and coefficient of variation match the target. The search runs over
// (log alpha, log theta) so every iterate stays in the positive quadrant: a
// Nelder-Mead descent of the squared relative residuals followed by damped
// Newton steps with a forward-difference Jacobian. A nil logger disables
// diagnostics.
//
// When the residuals cannot be driven below calibrationTol, for example when
// no gamma distribution truncated to the bounds attains the target, Calibrate
// returns a *CalibrationError describing the best point found.
func Calibrate(target Target, bounds Bounds, logger *zap.Logger) (GammaParams, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := multierr.Combine(target.Validate(), bounds.Validate()); err != nil {
		return GammaParams{}, err
	}

	// Method-of-moments guess for the untruncated distribution. Truncation
	// pulls the solution away from it; the solve closes the gap.
	alpha0 := 1 / (target.CV * target.CV)
	theta0 := target.Mean / alpha0

	logger.Debug("calibrating truncated gamma",
		zap.Float64("target_mean", target.Mean),
		zap.Float64("target_cv", target.CV),
		zap.Float64("lower", bounds.A),
		zap.Float64("upper", bounds.B),
		zap.Float64("alpha0", alpha0),
		zap.Float64("theta0", theta0),
	)

	evals := 0
	eval := func(logAlpha, logTheta float64) (rMean, rCV float64) {
		alpha, theta := math.Exp(logAlpha), math.Exp(logTheta)
		// exp over- or underflow leaves the gamma parameter domain.
		if alpha == 0 || theta == 0 || math.IsInf(alpha, 0) || math.IsInf(theta, 0) {
			return math.NaN(), math.NaN()
		}
		evals++
		m1, m2 := moments(alpha, theta, bounds.A, bounds.B)
		cv := math.Sqrt(m2-m1*m1) / m1
		// Residuals are relative to the targets so both equations converge
		// at the same scale.
		return (m1 - target.Mean) / target.Mean, (cv - target.CV) / target.CV
	}
	objective := func(x []float64) float64 {
		rMean, rCV := eval(x[0], x[1])
		if !isFinite(rMean) || !isFinite(rCV) {
			return solverPenalty
		}
		return rMean*rMean + rCV*rCV
	}

	x := []float64{math.Log(alpha0), math.Log(theta0)}
	status := optimize.NotTerminated
	result, err := optimize.Minimize(
		optimize.Problem{Func: objective},
		x,
		&optimize.Settings{MajorIterations: nmMaxIterations},
		&optimize.NelderMead{},
	)
	if result != nil {
		x = result.X
		status = result.Status
	}
	if err != nil {
		logger.Debug("simplex stage failed, polishing from last iterate", zap.Error(err))
	}

	x = polish(x, eval)
	params := GammaParams{Alpha: math.Exp(x[0]), Theta: math.Exp(x[1])}

	rMean, rCV := eval(x[0], x[1])
	if !isFinite(rMean) || !isFinite(rCV) ||
		math.Abs(rMean) > calibrationTol || math.Abs(rCV) > calibrationTol {
		m1, m2 := moments(params.Alpha, params.Theta, bounds.A, bounds.B)
		return GammaParams{}, &CalibrationError{
			Target:       target,
			Bounds:       bounds,
			Params:       params,
			Mean:         m1,
			CV:           math.Sqrt(m2-m1*m1) / m1,
			MeanResidual: rMean,
			CVResidual:   rCV,
			Status:       status,
			Evaluations:  evals,
		}
	}
	if err := params.Validate(); err != nil {
		return GammaParams{}, err
	}

	logger.Debug("calibration converged",
		zap.Float64("alpha", params.Alpha),
		zap.Float64("theta", params.Theta),
		zap.Float64("mean_residual", rMean),
		zap.Float64("cv_residual", rCV),
		zap.Int("evaluations", evals),
	)
	return params, nil
}

// polish refines a near-solution of the two moment equations with damped
// Newton steps, using a forward-difference Jacobian and halving the step
// until the residual norm shrinks.
func polish(x []float64, eval func(float64, float64) (float64, float64)) []float64 {
	rMean, rCV := eval(x[0], x[1])
	norm := math.Hypot(rMean, rCV)
	for range newtonMaxSteps {
		if !isFinite(norm) || norm <= calibrationTol/4 {
			break
		}

		const h = jacobianStep
		rMeanA, rCVA := eval(x[0]+h, x[1])
		rMeanT, rCVT := eval(x[0], x[1]+h)
		j00, j10 := (rMeanA-rMean)/h, (rCVA-rCV)/h
		j01, j11 := (rMeanT-rMean)/h, (rCVT-rCV)/h
		det := j00*j11 - j01*j10
		if det == 0 || !isFinite(det) {
			break
		}
		dx0 := -(j11*rMean - j01*rCV) / det
		dx1 := -(j00*rCV - j10*rMean) / det

		step := 1.0
		improved := false
		for range 8 {
			cand := []float64{x[0] + step*dx0, x[1] + step*dx1}
			candMean, candCV := eval(cand[0], cand[1])
			candNorm := math.Hypot(candMean, candCV)
			if isFinite(candNorm) && candNorm < norm {
				x, rMean, rCV, norm = cand, candMean, candCV, candNorm
				improved = true
				break
			}
			step /= 2
		}
		if !improved {
			break
		}
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
