package model

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// Session is one ONNX Runtime session with its bound input and output
// tensors. It is not safe for concurrent use; the inference pool gives each
// worker its own Session.
type Session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
}

// InitEnvironment loads the ONNX Runtime shared library once per process.
func InitEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyEnvironment releases the runtime after every session is closed.
func DestroyEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("failed to destroy ONNX environment", "error", err)
		}
	}
}

func NewSession(modelPath string, meta Metadata) (*Session, error) {
	inputShape := ort.NewShape(meta.InputShape...)
	outputShape := ort.NewShape(meta.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    meta.InputSize(),
	}, nil
}

// Run scores one (1, H, W, 1) input and returns a copy of the output row.
func (s *Session) Run(input []float32) ([]float32, error) {
	if len(input) != s.inputSize {
		return nil, fmt.Errorf("expected %d input values, got %d", s.inputSize, len(input))
	}
	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (s *Session) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}

// LoadSessions initializes the runtime and opens n independent sessions on
// the same model file. On error every session opened so far is closed and
// the runtime is released again.
func LoadSessions(libraryPath, modelPath string, meta Metadata, n int) ([]*Session, error) {
	if err := InitEnvironment(libraryPath); err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, n)
	for i := 0; i < n; i++ {
		s, err := NewSession(modelPath, meta)
		if err != nil {
			for _, opened := range sessions {
				opened.Close()
			}
			DestroyEnvironment()
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	slog.Info("model loaded", "path", modelPath, "sessions", n, "classes", meta.Classes)
	return sessions, nil
}
