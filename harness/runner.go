package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/reference"
	"github.com/gomlx/nnconform/testgen"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Result of running one case.
type Result struct {
	Name    string
	Passed  bool
	Skipped bool

	// Err describes the failure of a case that didn't pass and wasn't skipped.
	Err error

	// Examples is the number of examples executed, Ignored the number of examples skipped.
	Examples, Ignored int

	Elapsed time.Duration
}

// String implements fmt.Stringer.
func (r Result) String() string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("SKIP %s", r.Name)
	case r.Passed:
		return fmt.Sprintf("PASS %s (%d examples, %s)", r.Name, r.Examples, r.Elapsed)
	}
	return fmt.Sprintf("FAIL %s: %v", r.Name, r.Err)
}

// Report of a Runner.Run, with one Result per case run, in the order the cases were given.
type Report struct {
	Results                          []Result
	NumPassed, NumFailed, NumSkipped int
}

// Failed returns the results of the failed cases.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, result := range r.Results {
		if !result.Passed && !result.Skipped {
			failed = append(failed, result)
		}
	}
	return failed
}

// String returns a one-line summary of the report.
func (r *Report) String() string {
	return fmt.Sprintf("%d cases: %d passed, %d failed, %d skipped", len(r.Results), r.NumPassed, r.NumFailed, r.NumSkipped)
}

// Runner runs conformance cases with the reference executor.
type Runner struct {
	Config *Config
}

// New returns a Runner with the given configuration. If config is nil, DefaultConfig is used.
func New(config *Config) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Runner{Config: config}
}

// Run executes the cases, at most Config.Parallelism at a time.
//
// Case failures are reported in the Report, not as errors. An error is returned only for an invalid
// configuration or if ctx is cancelled, in which case the Report holds the results of the cases that
// were scheduled.
func (r *Runner) Run(ctx context.Context, cases []*testgen.Case) (*Report, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}
	results := make([]Result, len(cases))
	var g errgroup.Group
	g.SetLimit(r.Config.Parallelism)
	scheduled := 0
	for i, c := range cases {
		if ctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			results[i] = r.runCase(c)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Results: results[:scheduled]}
	for _, result := range report.Results {
		switch {
		case result.Skipped:
			report.NumSkipped++
		case result.Passed:
			report.NumPassed++
		default:
			report.NumFailed++
			klog.Warningf("harness: %s", result)
		}
	}
	klog.Infof("harness: %s", report)
	if err := ctx.Err(); err != nil {
		return report, errors.Wrapf(err, "harness interrupted after scheduling %d of %d cases", scheduled, len(cases))
	}
	return report, nil
}

// runCase builds the model of the case and runs all its examples that are not ignored.
func (r *Runner) runCase(c *testgen.Case) (result Result) {
	result.Name = c.Name
	if slices.Contains(r.Config.Skip, c.Name) {
		result.Skipped = true
		return result
	}
	start := time.Now()
	defer func() { result.Elapsed = time.Since(start) }()

	m, err := c.Build()
	if err != nil {
		result.Err = err
		return result
	}
	tol := r.tolerance(c)
	for i, example := range c.Examples {
		if c.IsIgnored(i) {
			result.Ignored++
			continue
		}
		outputs, err := reference.Execute(m, example.Inputs)
		if err != nil {
			result.Err = errors.WithMessagef(err, "example #%d", i)
			return result
		}
		if len(outputs) != len(example.Outputs) {
			result.Err = errors.Errorf("example #%d: got %d outputs, expected %d", i, len(outputs), len(example.Outputs))
			return result
		}
		for j, output := range outputs {
			if err := compare(output, example.Outputs[j], tol); err != nil {
				result.Err = errors.WithMessagef(err, "example #%d, output #%d", i, j)
				return result
			}
		}
		result.Examples++
	}
	if result.Examples == 0 && result.Ignored > 0 {
		result.Skipped = true
		return result
	}
	result.Passed = true
	klog.V(1).Infof("harness: %s", result)
	return result
}

// tolerance returns the tolerance used for the outputs of the case.
func (r *Runner) tolerance(c *testgen.Case) Tolerance {
	class := ClassFloat32
	switch {
	case c.Relaxed:
		class = ClassRelaxed
	case strings.HasSuffix(c.DataType, "float16"):
		class = ClassFloat16
	case strings.HasSuffix(strings.ToLower(c.DataType), "quant8"):
		class = ClassQuant8
	}
	return r.Config.Tolerances[class]
}

// compare checks the dimensions and values of an output against the expected one.
func compare(output reference.Output, expected testgen.ExpectedOutput, tol Tolerance) error {
	if !slices.Equal(output.Dimensions, expected.Type.Dimensions) {
		return errors.Errorf("dimensions %v, expected %v", output.Dimensions, expected.Type.Dimensions)
	}
	actualValues, err := toFloat32(expected.Type.DType, output.Data)
	if err != nil {
		return err
	}
	expectedValues, err := toFloat32(expected.Type.DType, expected.Data)
	if err != nil {
		return err
	}
	if len(actualValues) != len(expectedValues) {
		return errors.Errorf("got %d values, expected %d", len(actualValues), len(expectedValues))
	}
	var mismatches []string
	for i, v := range actualValues {
		if !tol.Accepts(v, expectedValues[i]) {
			mismatches = append(mismatches, fmt.Sprintf("[%d]=%g (expected %g)", i, v, expectedValues[i]))
		}
	}
	if numMismatches := len(mismatches); numMismatches > 0 {
		const maxListed = 5
		if len(mismatches) > maxListed {
			mismatches = append(mismatches[:maxListed], "...")
		}
		return errors.Errorf("%d values out of tolerance %+v: %s", numMismatches, tol, strings.Join(mismatches, ", "))
	}
	return nil
}

// toFloat32 decodes the values, as stored, to float32.
func toFloat32(dtype dtypes.DType, data []byte) ([]float32, error) {
	flat, err := dtypes.Decode(dtype, data)
	if err != nil {
		return nil, err
	}
	switch values := flat.(type) {
	case []float32:
		return values, nil
	case []float16.Float16:
		return convert(values, func(v float16.Float16) float32 { return v.Float32() }), nil
	case []uint8:
		return convert(values, func(v uint8) float32 { return float32(v) }), nil
	case []int8:
		return convert(values, func(v int8) float32 { return float32(v) }), nil
	case []int32:
		return convert(values, func(v int32) float32 { return float32(v) }), nil
	}
	return nil, errors.Errorf("can't compare outputs of dtype %s", dtype)
}

func convert[T any](values []T, fn func(T) float32) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = fn(v)
	}
	return out
}
