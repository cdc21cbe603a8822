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
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/scylladb/truncgamma/pkg/random"
)

// Config drives sampler construction. An absent seed selects the
// process-wide non-deterministic source; a present seed selects a
// deterministic one, so equal configs replay equal streams.
type Config struct {
	Target Target
	Bounds Bounds
	Seed   mo.Option[uint64]
}

func (c Config) validate() error {
	return multierr.Combine(c.Target.Validate(), c.Bounds.Validate())
}

func (c Config) source() rand.Source {
	if c.Seed.IsPresent() {
		return random.NewSeeded(c.Seed.MustGet())
	}
	return random.Source
}

// Sampler draws variates from a gamma distribution calibrated to a target
// and truncated to an interval. Calibration runs once at construction; each
// draw is a uniform variate on [F(A), F(B)] mapped through the untruncated
// gamma quantile function, so every sample lies in [A, B] by construction.
//
// A Sampler is not safe for concurrent use when built from a seeded source.
type Sampler struct {
	model Model
	uni   distuv.Uniform
}

// NewSampler calibrates gamma parameters against cfg.Target on cfg.Bounds
// and returns a sampler over the resulting model. It fails with the
// underlying validation or calibration error when the targets are invalid
// or unreachable. A nil logger disables diagnostics.
func NewSampler(cfg Config, logger *zap.Logger) (*Sampler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	params, err := Calibrate(cfg.Target, cfg.Bounds, logger)
	if err != nil {
		logger.Error("truncated gamma sampler construction failed", zap.Error(err))
		return nil, err
	}
	model := Model{params: params, bounds: cfg.Bounds}

	return &Sampler{
		model: model,
		uni: distuv.Uniform{
			Min: mathext.GammaIncReg(params.Alpha, cfg.Bounds.A/params.Theta),
			Max: mathext.GammaIncReg(params.Alpha, cfg.Bounds.B/params.Theta),
			Src: cfg.source(),
		},
	}, nil
}

// Rand returns one variate. Boundary rounding in the quantile inversion is
// clamped so the result is always inside the truncation interval.
func (s *Sampler) Rand() float64 {
	x := s.model.params.Theta * mathext.GammaIncRegInv(s.model.params.Alpha, s.uni.Rand())
	return min(max(x, s.model.bounds.A), s.model.bounds.B)
}

// RandN returns the next n variates of the stream, or nil when n is not
// positive. Drawing k then m variates yields the same values as drawing
// k+m at once.
func (s *Sampler) RandN(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Rand()
	}
	return out
}

// Model returns the calibrated truncated model backing the sampler.
func (s *Sampler) Model() Model { return s.model }

// Params returns the calibrated untruncated gamma parameters.
func (s *Sampler) Params() GammaParams { return s.model.params }

// Sample calibrates gamma parameters to the targets and draws size variates
// from the result truncated to [a, b]. It is the one-shot form of NewSampler
// followed by RandN: same stream, same seed semantics.
func Sample(meanTarget, cvTarget, a, b float64, size int, seed mo.Option[uint64]) ([]float64, error) {
	if size < 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "size must be at least 1, got %d", size)
	}

	s, err := NewSampler(Config{
		Target: Target{Mean: meanTarget, CV: cvTarget},
		Bounds: Bounds{A: a, B: b},
		Seed:   seed,
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.RandN(size), nil
}
