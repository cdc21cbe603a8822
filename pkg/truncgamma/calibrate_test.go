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

package truncgamma_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scylladb/truncgamma/pkg/testutils"
	"github.com/scylladb/truncgamma/pkg/truncgamma"
)

func TestCalibrateMatchesTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		alpha float64
		theta float64
		a     float64
		b     float64
	}{
		{name: "barely truncated", alpha: 4, theta: 25, a: 0, b: 1000},
		{name: "upper tail cut", alpha: 4, theta: 25, a: 0, b: 150},
		{name: "both tails cut", alpha: 3, theta: 40, a: 20, b: 200},
		{name: "shape below one", alpha: 0.8, theta: 50, a: 0, b: 100},
		{name: "exponential flavor", alpha: 1, theta: 30, a: 5, b: 90},
		{name: "narrow high shape", alpha: 12, theta: 2, a: 10, b: 60},
		{name: "strongly truncated", alpha: 20, theta: 90, a: 0, b: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Targets come from a known model, so a solution exists and
			// calibration must reproduce its truncated moments.
			ref := testutils.Must(truncgamma.NewModel(tt.alpha, tt.theta, tt.a, tt.b))
			target := truncgamma.Target{Mean: ref.Mean(), CV: ref.CoefficientOfVariation()}
			bounds := truncgamma.Bounds{A: tt.a, B: tt.b}

			params, err := truncgamma.Calibrate(target, bounds, zaptest.NewLogger(t))
			require.NoError(t, err)

			got := testutils.Must(truncgamma.NewModel(params.Alpha, params.Theta, tt.a, tt.b))
			require.InEpsilon(t, target.Mean, got.Mean(), 1e-6)
			require.InEpsilon(t, target.CV, got.CoefficientOfVariation(), 1e-6)
		})
	}
}

func TestCalibrateReferenceTargets(t *testing.T) {
	t.Parallel()

	params, err := truncgamma.Calibrate(
		truncgamma.Target{Mean: 100, CV: 0.5},
		truncgamma.Bounds{A: 0, B: 1000},
		nil,
	)
	require.NoError(t, err)
	require.InEpsilon(t, 4.0, params.Alpha, 1e-6)
	require.InEpsilon(t, 25.0, params.Theta, 1e-6)

	m := testutils.Must(truncgamma.NewModel(params.Alpha, params.Theta, 0, 1000))
	require.InEpsilon(t, 100.0, m.Mean(), 1e-7)
	require.InEpsilon(t, 0.5, m.CoefficientOfVariation(), 1e-7)
}

func TestCalibrateStronglyTruncated(t *testing.T) {
	t.Parallel()

	// A mean close to the cap with a small cv piles the mass against the
	// upper bound: the untruncated mean lands far above B and the simplex
	// has a long log-space descent from the method-of-moments guess.
	params, err := truncgamma.Calibrate(
		truncgamma.Target{Mean: 95, CV: 0.05},
		truncgamma.Bounds{A: 0, B: 100},
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)

	m := testutils.Must(truncgamma.NewModel(params.Alpha, params.Theta, 0, 100))
	require.InEpsilon(t, 95.0, m.Mean(), 1e-7)
	require.InEpsilon(t, 0.05, m.CoefficientOfVariation(), 1e-7)
}

func TestCalibrateUntruncatedLimit(t *testing.T) {
	t.Parallel()

	// With bounds that keep essentially all of the mass the calibrated
	// parameters collapse to the method-of-moments solution for the
	// untruncated distribution. Accepted residuals may reach 1e-8, letting
	// alpha = cv^-2 drift by 2e-8 and theta = mean/alpha by 3e-8, so the
	// comparison stays an order of magnitude looser.
	params, err := truncgamma.Calibrate(
		truncgamma.Target{Mean: 100, CV: 0.5},
		truncgamma.Bounds{A: 0, B: 1e9},
		nil,
	)
	require.NoError(t, err)
	require.InEpsilon(t, 4.0, params.Alpha, 1e-7)
	require.InEpsilon(t, 25.0, params.Theta, 1e-7)
}

func TestCalibrateInfeasibleTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target truncgamma.Target
		bounds truncgamma.Bounds
	}{
		{
			// Any distribution on [90, 110] with mean 100 has cv at most 0.1.
			name:   "cv above interval cap",
			target: truncgamma.Target{Mean: 100, CV: 0.5},
			bounds: truncgamma.Bounds{A: 90, B: 110},
		},
		{
			// The truncated mean always lies inside the interval.
			name:   "mean outside interval",
			target: truncgamma.Target{Mean: 100, CV: 0.5},
			bounds: truncgamma.Bounds{A: 200, B: 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			params, err := truncgamma.Calibrate(tt.target, tt.bounds, nil)
			require.Error(t, err)
			require.Zero(t, params)

			var calErr *truncgamma.CalibrationError
			require.ErrorAs(t, err, &calErr)
			require.Equal(t, tt.target, calErr.Target)
			require.Equal(t, tt.bounds, calErr.Bounds)
			require.Positive(t, calErr.Evaluations)
			require.ErrorContains(t, err, "calibration did not converge")
		})
	}
}

func TestCalibrateValidation(t *testing.T) {
	t.Parallel()

	t.Run("zero mean", func(t *testing.T) {
		t.Parallel()

		_, err := truncgamma.Calibrate(
			truncgamma.Target{Mean: 0, CV: 0.5},
			truncgamma.Bounds{A: 0, B: 10},
			nil,
		)
		require.ErrorIs(t, err, truncgamma.ErrInvalidParameter)
		require.ErrorContains(t, err, "target mean must be greater than zero")
	})

	t.Run("negative cv", func(t *testing.T) {
		t.Parallel()

		_, err := truncgamma.Calibrate(
			truncgamma.Target{Mean: 100, CV: -0.5},
			truncgamma.Bounds{A: 0, B: 10},
			nil,
		)
		require.ErrorIs(t, err, truncgamma.ErrInvalidParameter)
		require.ErrorContains(t, err, "target cv must be greater than zero")
	})

	t.Run("target and bounds violations aggregated", func(t *testing.T) {
		t.Parallel()

		_, err := truncgamma.Calibrate(
			truncgamma.Target{Mean: -1, CV: 0.5},
			truncgamma.Bounds{A: -5, B: 10},
			nil,
		)
		require.ErrorIs(t, err, truncgamma.ErrInvalidParameter)
		require.ErrorContains(t, err, "target mean must be greater than zero")
		require.ErrorContains(t, err, "lower bound A must be greater than or equal to zero")
	})
}

func TestCalibrateDeterministic(t *testing.T) {
	t.Parallel()

	target := truncgamma.Target{Mean: 100, CV: 0.5}
	bounds := truncgamma.Bounds{A: 0, B: 300}

	first := testutils.Must(truncgamma.Calibrate(target, bounds, nil))
	second := testutils.Must(truncgamma.Calibrate(target, bounds, nil))
	require.Equal(t, first, second)
}

func BenchmarkCalibrate(b *testing.B) {
	target := truncgamma.Target{Mean: 100, CV: 0.5}
	bounds := truncgamma.Bounds{A: 0, B: 400}

	b.ResetTimer()
	for range b.N {
		_, _ = truncgamma.Calibrate(target, bounds, nil)
	}
}
