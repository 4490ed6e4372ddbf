package models

import (
	"fmt"
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/JarvisUSTC/vidore-benchmark/device"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime initializes ONNX Runtime once per process.
// libraryPath overrides the shared library location when non-empty.
func InitRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			onnxruntime.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = onnxruntime.InitializeEnvironment()
	})
	if runtimeErr != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", runtimeErr)
	}
	return nil
}

// CUDAAvailable reports whether the loaded ONNX Runtime can append the CUDA provider.
// It is a device.Detector.
func CUDAAvailable() bool {
	if err := InitRuntime(""); err != nil {
		return false
	}
	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return false
	}
	defer func() {
		_ = options.Destroy()
	}()
	return appendCUDA(options, 0) == nil
}

var _ device.Detector = CUDAAvailable

func appendCUDA(options *onnxruntime.SessionOptions, id int) error {
	cudaOptions, err := onnxruntime.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer func() {
		_ = cudaOptions.Destroy()
	}()
	if err := cudaOptions.Update(map[string]string{"device_id": fmt.Sprint(id)}); err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

// ONNXModel wraps an ONNX Runtime session for inference
type ONNXModel struct {
	session     *onnxruntime.DynamicAdvancedSession
	path        string
	inputNames  []string
	outputNames []string
	mu          sync.Mutex
}

// NewONNXModel creates a new ONNX model from a file placed on dev
func NewONNXModel(modelPath string, dev device.Device) (*ONNXModel, error) {
	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		_ = options.Destroy()
	}()

	if dev.IsAccelerator() {
		if err := appendCUDA(options, dev.ID); err != nil {
			return nil, fmt.Errorf("failed to place %s on %s: %w", modelPath, dev, err)
		}
	}

	inputs, outputs, err := onnxruntime.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}

	inputNames := make([]string, len(inputs))
	for i, input := range inputs {
		inputNames[i] = input.Name
	}
	outputNames := make([]string, len(outputs))
	for i, output := range outputs {
		outputNames[i] = output.Name
	}

	session, err := onnxruntime.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}

	return &ONNXModel{
		session:     session,
		path:        modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run runs inference on the model. Calls are serialized per session.
// Inputs must match the declared graph inputs, except that a missing token_type_ids
// is filled with zeros shaped like input_ids.
func (m *ONNXModel) Run(inputs map[string]Tensor) (map[string]Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("session for %s is closed", m.path)
	}

	inputValues := make([]onnxruntime.Value, len(m.inputNames))
	defer func() {
		for _, value := range inputValues {
			if value != nil {
				_ = value.Destroy()
			}
		}
	}()

	if err := CheckInputs(m.inputNames, inputs); err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}

	for i, name := range m.inputNames {
		input, exists := inputs[name]
		if !exists {
			ids := inputs["input_ids"]
			input = Tensor{Shape: ids.Shape, Int: make([]int64, len(ids.Int))}
		}

		value, err := createTensor(input)
		if err != nil {
			return nil, fmt.Errorf("failed to create tensor for %s: %w", name, err)
		}
		inputValues[i] = value
	}

	// nil outputs are allocated by the session
	outputValues := make([]onnxruntime.Value, len(m.outputNames))
	defer func() {
		for _, value := range outputValues {
			if value != nil {
				_ = value.Destroy()
			}
		}
	}()

	if err := m.session.Run(inputValues, outputValues); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputs := make(map[string]Tensor, len(m.outputNames))
	for i, name := range m.outputNames {
		switch tensor := outputValues[i].(type) {
		case *onnxruntime.Tensor[float32]:
			outputs[name] = Tensor{
				Shape: append([]int64(nil), tensor.GetShape()...),
				Float: append([]float32(nil), tensor.GetData()...),
			}
		case *onnxruntime.Tensor[int64]:
			outputs[name] = Tensor{
				Shape: append([]int64(nil), tensor.GetShape()...),
				Int:   append([]int64(nil), tensor.GetData()...),
			}
		default:
			return nil, fmt.Errorf("unsupported output type %T for %s", outputValues[i], name)
		}
	}

	return outputs, nil
}

// createTensor converts a Tensor into an ONNX value
func createTensor(input Tensor) (onnxruntime.Value, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	shape := onnxruntime.NewShape(input.Shape...)
	if input.Int != nil {
		return onnxruntime.NewTensor(shape, input.Int)
	}
	return onnxruntime.NewTensor(shape, input.Float)
}

// Close releases model resources
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}

// Loader opens ONNX sessions on a fixed device
func Loader(dev device.Device) SessionLoader {
	return func(path string) (Backend, error) {
		return NewONNXModel(path, dev)
	}
}
