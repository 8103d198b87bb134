// Package harness runs conformance cases against the reference executor: it builds each case's model,
// executes its examples and compares the outputs with the expected values, within tolerances that
// depend on the data type of the case.
package harness

import (
	"os"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Tolerance classes, keys of Config.Tolerances.
const (
	ClassFloat32 = "float32"
	ClassRelaxed = "relaxed"
	ClassFloat16 = "float16"
	ClassQuant8  = "quant8"
)

// float32Epsilon is the difference between 1 and the next representable float32.
const float32Epsilon = 1.1920928955078125e-07

// float16Epsilon is the difference between 1 and the next representable float16.
const float16Epsilon = 1.0 / 1024

// Tolerance accepts an output value a for expected value e if |a - e| <= Atol + Rtol*|e|.
// For quantized outputs the values compared are the stored integers.
type Tolerance struct {
	Atol float64 `yaml:"atol"`
	Rtol float64 `yaml:"rtol"`
}

// Accepts returns whether actual is within tolerance of expected. NaN is never accepted.
func (t Tolerance) Accepts(actual, expected float32) bool {
	return math32.Abs(actual-expected) <= float32(t.Atol)+float32(t.Rtol)*math32.Abs(expected)
}

// Config of a Runner.
type Config struct {
	// Parallelism is the maximum number of cases run concurrently.
	Parallelism int `yaml:"parallelism"`

	// Skip lists names of cases not to run. They are reported as skipped.
	Skip []string `yaml:"skip"`

	// Tolerances by class: ClassFloat32, ClassRelaxed, ClassFloat16 and ClassQuant8.
	Tolerances map[string]Tolerance `yaml:"tolerances"`
}

// DefaultConfig returns the default configuration: one case per CPU and the tolerances of the
// conformance test suites.
func DefaultConfig() *Config {
	return &Config{
		Parallelism: runtime.NumCPU(),
		Tolerances: map[string]Tolerance{
			ClassFloat32: {Atol: 1e-5, Rtol: 5 * float32Epsilon},
			ClassRelaxed: {Atol: 5 * float16Epsilon, Rtol: 5 * float16Epsilon},
			ClassFloat16: {Atol: 5 * float16Epsilon, Rtol: 5 * float16Epsilon},
			ClassQuant8:  {Atol: 1},
		},
	}
}

// LoadConfig reads a YAML configuration from path. Fields not set in the file keep the values of
// DefaultConfig. Tolerances are merged per class and per field: `float32: {atol: 1e-3}` keeps the
// default rtol of float32.
func LoadConfig(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading harness configuration")
	}
	return ParseConfig(contents)
}

// configFile is the YAML layout of a Config. Tolerances are kept as nodes, so each one can be
// decoded over the default of its class.
type configFile struct {
	Parallelism *int                 `yaml:"parallelism"`
	Skip        []string             `yaml:"skip"`
	Tolerances  map[string]yaml.Node `yaml:"tolerances"`
}

// ParseConfig parses a YAML configuration, see LoadConfig.
func ParseConfig(contents []byte) (*Config, error) {
	var file configFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, errors.Wrap(err, "parsing harness configuration")
	}
	config := DefaultConfig()
	if file.Parallelism != nil {
		config.Parallelism = *file.Parallelism
	}
	if file.Skip != nil {
		config.Skip = file.Skip
	}
	for class, node := range file.Tolerances {
		tol := config.Tolerances[class]
		if err := node.Decode(&tol); err != nil {
			return nil, errors.Wrapf(err, "parsing harness configuration: tolerance %q", class)
		}
		config.Tolerances[class] = tol
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return errors.Errorf("harness configuration: parallelism must be >= 1, got %d", c.Parallelism)
	}
	for _, class := range []string{ClassFloat32, ClassRelaxed, ClassFloat16, ClassQuant8} {
		if _, found := c.Tolerances[class]; !found {
			return errors.Errorf("harness configuration: missing tolerance for %q", class)
		}
	}
	for class, tol := range c.Tolerances {
		switch class {
		case ClassFloat32, ClassRelaxed, ClassFloat16, ClassQuant8:
		default:
			return errors.Errorf("harness configuration: unknown tolerance class %q", class)
		}
		if tol.Atol < 0 || tol.Rtol < 0 {
			return errors.Errorf("harness configuration: tolerance %q must not be negative, got %+v", class, tol)
		}
	}
	return nil
}
