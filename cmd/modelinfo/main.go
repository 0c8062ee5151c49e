package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/landmark"
)

func main() {
	kind := flag.String("kind", "", "Check the model against: blazeface, facemesh or movenet")
	size := flag.Int("size", 192, "MoveNet input size (192 lightning, 256 thunder)")
	lib := flag.String("ort-lib", os.Getenv("FACETRACK_ORT_LIBRARY"), "ONNX Runtime shared library")
	metal := flag.Bool("metal", false, "Also try importing the model with go-metal")
	flag.Usage = func() {
		fmt.Println("Usage: modelinfo [options] <model.onnx>")
		fmt.Println("\nPrints the tensors a model declares and checks them against a tracker model.")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/modelinfo -kind facemesh models/face_landmark.onnx")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	modelPath := flag.Arg(0)
	if err := run(modelPath, *kind, *size, *lib, *metal); err != nil {
		fmt.Printf("\n❌ %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, kind string, size int, lib string, metal bool) error {
	fmt.Printf("Model: %s\n", modelPath)

	// Check if file exists
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", modelPath)
	}

	if err := inference.Initialize(lib); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	defer inference.Shutdown()

	inputs, outputs, err := inference.Describe(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, t := range inputs {
		fmt.Printf("  %s: shape=%v\n", t.Name, t.Shape)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, t := range outputs {
		fmt.Printf("  %s: shape=%v\n", t.Name, t.Shape)
	}

	if kind != "" {
		spec, err := specFor(kind, modelPath, size)
		if err != nil {
			return err
		}
		if err := inference.ValidateModel(spec); err != nil {
			if errors.Is(err, inference.ErrShapeMismatch) {
				return fmt.Errorf("not a usable %s model: %w", kind, err)
			}
			return err
		}
		fmt.Printf("\n✓ Matches %s layout\n", kind)
	}

	if metal {
		importMetal(modelPath)
	}
	return nil
}

func specFor(kind, modelPath string, size int) (inference.ModelSpec, error) {
	switch kind {
	case "blazeface":
		return detector.BlazeFaceSpec(modelPath, inference.ProviderCPU), nil
	case "facemesh":
		return landmark.FaceMeshSpec(modelPath, inference.ProviderCPU), nil
	case "movenet":
		return landmark.MoveNetSpec(modelPath, size, inference.ProviderCPU), nil
	}
	return inference.ModelSpec{}, fmt.Errorf("unknown model kind: %s (use blazeface, facemesh or movenet)", kind)
}

// importMetal reports whether go-metal can load the graph natively
func importMetal(modelPath string) {
	fmt.Println("\nAttempting to import with go-metal...")
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		fmt.Printf("  go-metal cannot import this model: %v\n", err)
		return
	}

	fmt.Printf("  Layers: %d\n", len(checkpoint.ModelSpec.Layers))
	fmt.Printf("  Weights: %d tensors\n", len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
}
