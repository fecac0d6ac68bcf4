package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"frog-classifier/frog"
	"frog-classifier/wav"
)

// Runs the audio pipeline on a single file and prints the extracted
// features, optionally with a model prediction. Useful for checking that
// offline feature extraction matches what the server computes.

type output struct {
	File       string             `json:"file"`
	SampleRate int                `json:"sample_rate"`
	Features   map[string]float64 `json:"features"`
	Prediction string             `json:"prediction,omitempty"`
	Top        []frog.Prediction  `json:"top,omitempty"`
}

func main() {
	modelPath := flag.String("model", "", "Optional model artifact; when set, the features are classified")
	scalerPath := flag.String("scaler", "", "Optional scaler artifact")
	orderPath := flag.String("order", "", "Feature order artifact (required with -model)")
	preEmphasis := flag.Bool("preemphasis", true, "Apply pre-emphasis during normalization")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: extract_features [-model model.json -order feature_columns.json] <audio file>")
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read %s: %v", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	audio, err := wav.Decode(data, ext)
	if err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	samples, err := frog.Normalize(audio.Channels, audio.SampleRate, *preEmphasis)
	if err != nil {
		log.Fatalf("failed to normalize %s: %v", path, err)
	}

	result := output{
		File:       path,
		SampleRate: audio.SampleRate,
		Features:   frog.ExtractFeatures(samples, frog.TargetRate),
	}

	if *modelPath != "" {
		if *orderPath == "" {
			log.Fatal("-order is required with -model")
		}

		model, err := frog.LoadModel(*modelPath)
		if err != nil {
			log.Fatalf("failed to load model: %v", err)
		}
		var scaler *frog.FeatureScaler
		if *scalerPath != "" {
			scaler, err = frog.LoadScaler(*scalerPath)
			if err != nil {
				log.Fatalf("failed to load scaler: %v", err)
			}
		}
		order, err := frog.LoadFeatureOrder(*orderPath)
		if err != nil {
			log.Fatalf("failed to load feature order: %v", err)
		}

		vector, err := frog.OrderFeatures(result.Features, order)
		if err != nil {
			log.Fatalf("failed to order features: %v", err)
		}

		adapter := frog.NewAdapter(model, scaler)
		prediction, top, _, err := adapter.PredictTop(vector)
		if err != nil {
			log.Fatalf("prediction failed: %v", err)
		}
		result.Prediction = prediction
		result.Top = top
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		log.Fatalf("failed to encode output: %v", err)
	}
}
