package inference

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrModelNotFound is returned when a model file does not exist
	ErrModelNotFound = errors.New("model file not found")
	// ErrShapeMismatch is returned when a model's declared tensors differ from
	// what the adapter was built for
	ErrShapeMismatch = errors.New("declared tensor shape mismatch")
	// ErrNotInitialized is returned when a session is created before Initialize
	ErrNotInitialized = errors.New("ONNX Runtime not initialized, call Initialize() first")
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Provider selects the ONNX Runtime execution provider
type Provider string

const (
	ProviderCPU    Provider = "cpu"
	ProviderCoreML Provider = "coreml"
)

// Initialize sets up ONNX Runtime environment (call once at startup).
// An empty libraryPath keeps onnxruntime_go's platform default.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Initialized reports whether the environment is up
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// TensorSpec names a model tensor and its fixed shape
type TensorSpec struct {
	Name  string
	Shape []int64
}

// Size returns the number of elements in the tensor
func (t TensorSpec) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= int(dim)
	}
	return size
}

// ModelSpec describes a model file and the tensors an adapter expects from it
type ModelSpec struct {
	Path     string
	Inputs   []TensorSpec
	Outputs  []TensorSpec
	Provider Provider
}

// Engine is the fixed-shape view of a loaded model used by the adapters:
// fill Input, Run, read Output, Destroy once.
type Engine[In, Out ort.TensorData] interface {
	Input() []In
	Run() error
	Output(index int) []Out
	Destroy() error
}

// Session wraps an ONNX Runtime session with preallocated input and output tensors
type Session[In, Out ort.TensorData] struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[In]
	outputs []*ort.Tensor[Out]
	spec    ModelSpec
}

// NewSession loads a model, validates its declared tensors against spec and
// allocates the buffers. Only the first input of spec is bound.
func NewSession[In, Out ort.TensorData](spec ModelSpec, log logrus.FieldLogger) (*Session[In, Out], error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, spec.Path)
	}
	if len(spec.Inputs) != 1 || len(spec.Outputs) == 0 {
		return nil, fmt.Errorf("model %s: expected 1 input and at least 1 output, got %d and %d",
			spec.Path, len(spec.Inputs), len(spec.Outputs))
	}
	if !Initialized() {
		return nil, ErrNotInitialized
	}
	if err := ValidateModel(spec); err != nil {
		return nil, err
	}

	s := &Session[In, Out]{spec: spec}
	ok := false
	defer func() {
		if !ok {
			s.Destroy()
		}
	}()

	var err error
	s.input, err = ort.NewEmptyTensor[In](ort.NewShape(spec.Inputs[0].Shape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputs := make([]ort.Value, len(spec.Outputs))
	for i, out := range spec.Outputs {
		t, err := ort.NewEmptyTensor[Out](ort.NewShape(out.Shape...))
		if err != nil {
			return nil, fmt.Errorf("failed to create output tensor %s: %w", out.Name, err)
		}
		s.outputs = append(s.outputs, t)
		outputs[i] = t
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	entry := log.WithFields(logrus.Fields{"model": spec.Path, "provider": spec.Provider})
	if spec.Provider == ProviderCoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			// CoreML not available, continue with CPU
			entry.WithError(err).Warn("CoreML execution provider unavailable, using CPU")
		}
	}

	s.session, err = ort.NewAdvancedSession(
		spec.Path,
		names(spec.Inputs),
		names(spec.Outputs),
		[]ort.Value{s.input},
		outputs,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", spec.Path, err)
	}

	entry.Debug("model loaded")
	ok = true
	return s, nil
}

// Input returns the input buffer; write into it before Run
func (s *Session[In, Out]) Input() []In {
	return s.input.GetData()
}

// Run executes inference on the current input buffer
func (s *Session[In, Out]) Run() error {
	if s.session == nil {
		return fmt.Errorf("session for %s already destroyed", s.spec.Path)
	}
	return s.session.Run()
}

// Output returns the output buffer at index, valid until the next Run
func (s *Session[In, Out]) Output(index int) []Out {
	return s.outputs[index].GetData()
}

// Destroy releases session resources. Safe to call more than once.
func (s *Session[In, Out]) Destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
		s.input = nil
	}
	for _, t := range s.outputs {
		errs = append(errs, t.Destroy())
	}
	s.outputs = nil
	return errors.Join(errs...)
}

// Describe reads the declared inputs and outputs of a model file
func Describe(modelPath string) (inputs, outputs []TensorSpec, err error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	return toSpecs(in), toSpecs(out), nil
}

// ValidateModel checks that every tensor in spec is declared by the model
// with a matching shape
func ValidateModel(spec ModelSpec) error {
	inputs, outputs, err := Describe(spec.Path)
	if err != nil {
		return err
	}
	if err := matchTensors(spec.Inputs, inputs); err != nil {
		return fmt.Errorf("model %s input: %w", spec.Path, err)
	}
	if err := matchTensors(spec.Outputs, outputs); err != nil {
		return fmt.Errorf("model %s output: %w", spec.Path, err)
	}
	return nil
}

// CheckShape compares a declared shape with the expected one. Declared
// dimensions <= 0 are dynamic and accept any expected size.
func CheckShape(name string, declared, expected []int64) error {
	if len(declared) != len(expected) {
		return fmt.Errorf("%w: %s has rank %d, expected %v", ErrShapeMismatch, name, len(declared), expected)
	}
	for i := range declared {
		if declared[i] > 0 && declared[i] != expected[i] {
			return fmt.Errorf("%w: %s is %v, expected %v", ErrShapeMismatch, name, declared, expected)
		}
	}
	return nil
}

func matchTensors(expected, declared []TensorSpec) error {
	byName := make(map[string][]int64, len(declared))
	for _, d := range declared {
		byName[d.Name] = d.Shape
	}
	for _, e := range expected {
		shape, found := byName[e.Name]
		if !found {
			return fmt.Errorf("%w: tensor %q not declared", ErrShapeMismatch, e.Name)
		}
		if err := CheckShape(e.Name, shape, e.Shape); err != nil {
			return err
		}
	}
	return nil
}

func toSpecs(info []ort.InputOutputInfo) []TensorSpec {
	specs := make([]TensorSpec, len(info))
	for i, in := range info {
		specs[i] = TensorSpec{Name: in.Name, Shape: []int64(in.Dimensions)}
	}
	return specs
}

func names(specs []TensorSpec) []string {
	result := make([]string, len(specs))
	for i, s := range specs {
		result[i] = s.Name
	}
	return result
}
