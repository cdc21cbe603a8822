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

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// ErrInvalidParameter wraps every constraint violation reported by parameter,
// bounds and target validation.
var ErrInvalidParameter = errors.New("invalid parameter")

// CalibrationError reports that the moment-matching solve did not reach the
// requested targets. It carries the solver state at the best point found so
// callers can log or inspect how far off the fit ended up.
type CalibrationError struct {
	Target       Target
	Bounds       Bounds
	Params       GammaParams // best parameters reached by the solver
	Mean         float64     // truncated mean at Params
	CV           float64     // truncated coefficient of variation at Params
	MeanResidual float64     // (Mean - Target.Mean) / Target.Mean
	CVResidual   float64     // (CV - Target.CV) / Target.CV
	Status       optimize.Status
	Evaluations  int // residual evaluations spent across both solver stages
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf(
		"calibration did not converge: target %s on %s, best %s gives mean=%g cv=%g after %d evaluations (status %v)",
		e.Target, e.Bounds, e.Params, e.Mean, e.CV, e.Evaluations, e.Status)
}
