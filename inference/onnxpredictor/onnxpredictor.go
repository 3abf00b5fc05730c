// Package onnxpredictor implements inference.Predictor over ONNX Runtime.
// Session setup mirrors the teacher's dedicated ONNX client: single-threaded
// intra/inter-op execution (there are many concurrent search workers, so
// contention inside one session helps nobody), a best-effort CUDA provider,
// and the same LD_LIBRARY_PATH bootstrapping for a Python-venv-installed
// CUDA/Torch stack. Unlike that client, this predictor does no batching of
// its own: inference.ModelEvaluator already merges concurrent callers before
// calling Infer, so every call here already carries a full batch.
package onnxpredictor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kepford/phsstar/inference"
)

var ortInitOnce sync.Once
var ortInitErr error

// Config configures a Predictor.
type Config struct {
	ModelPath      string
	Shape          inference.Shape
	NumActions     int
	IntraOpThreads int
	InterOpThreads int
}

// Predictor runs a policy+heuristic ONNX model with input name "input" and
// output names "policy" and "heuristic".
type Predictor struct {
	session *ort.DynamicAdvancedSession
	shape   inference.Shape
	actions int
}

// New loads the model at cfg.ModelPath and prepares a session for repeated
// batched inference.
func New(cfg Config) (*Predictor, error) {
	if cfg.IntraOpThreads <= 0 {
		cfg.IntraOpThreads = 1
	}
	if cfg.InterOpThreads <= 0 {
		cfg.InterOpThreads = 1
	}

	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("onnxpredictor: init runtime: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	options.SetInterOpNumThreads(cfg.InterOpThreads)

	if cudaOptions, err := ort.NewCUDAProviderOptions(); err == nil {
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			fmt.Println("onnxpredictor: failed to append CUDA provider:", err)
		} else {
			fmt.Println("onnxpredictor: CUDA provider enabled")
		}
	} else {
		fmt.Println("onnxpredictor: no CUDA provider available:", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{"input"}, []string{"policy", "heuristic"}, options)
	if err != nil {
		return nil, fmt.Errorf("onnxpredictor: create session: %w", err)
	}

	return &Predictor{session: session, shape: cfg.Shape, actions: cfg.NumActions}, nil
}

func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	candidateDirs := []string{cwd}
	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "triton", "backends", "nvidia", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "torch", "lib"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	existingSet := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			existingSet[p] = true
		}
	}

	var toAdd []string
	for _, d := range candidateDirs {
		if existingSet[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			toAdd = append(toAdd, d)
		}
	}
	if len(toAdd) == 0 {
		return
	}

	newVal := strings.Join(toAdd, ":")
	if existing != "" {
		newVal = newVal + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", newVal)
}

// Shape returns the observation shape the session was configured with.
func (p *Predictor) Shape() inference.Shape { return p.shape }

// Infer runs one session call over the full batch of inputs.
func (p *Predictor) Infer(inputs []inference.Observation) ([]inference.Output, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	batchSize := int64(len(inputs))
	flat := make([]float32, 0, len(inputs)*p.shape.C*p.shape.H*p.shape.W)
	for _, obs := range inputs {
		flat = append(flat, obs...)
	}

	inputShape := []int64{batchSize, int64(p.shape.C), int64(p.shape.H), int64(p.shape.W)}
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), flat)
	if err != nil {
		return nil, err
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, int64(p.actions)))
	if err != nil {
		return nil, err
	}
	defer policyTensor.Destroy()

	heuristicTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, 1))
	if err != nil {
		return nil, err
	}
	defer heuristicTensor.Destroy()

	if err := p.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, heuristicTensor}); err != nil {
		return nil, err
	}

	policyData := policyTensor.GetData()
	heuristicData := heuristicTensor.GetData()

	outputs := make([]inference.Output, len(inputs))
	for i := range inputs {
		policy := make([]float64, p.actions)
		for a := 0; a < p.actions; a++ {
			policy[a] = float64(policyData[i*p.actions+a])
		}
		outputs[i] = inference.Output{Policy: policy, Heuristic: float64(heuristicData[i])}
	}
	return outputs, nil
}

// Close releases the underlying ONNX Runtime session.
func (p *Predictor) Close() error {
	return p.session.Destroy()
}
