package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"frog-classifier/frog"
	"frog-classifier/wav"
)

// Evaluates a model artifact against a directory of labelled recordings.
// The directory has one subdirectory per species; every audio file inside
// is run through the same pipeline the server uses.

type evalConfig struct {
	ModelPath  string
	ScalerPath string
	OrderPath  string
	DataDir    string
	OutputCSV  string
}

type evalResult struct {
	File       string
	Actual     string
	Predicted  string
	Confidence float64
	Correct    bool
	LatencyMs  float64
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation ===")
	log.Printf("Model: %s\n", config.ModelPath)
	log.Printf("Data: %s\n", config.DataDir)

	model, err := frog.LoadModel(config.ModelPath)
	if err != nil {
		log.Fatalf("ERROR: failed to load model: %v", err)
	}
	var scaler *frog.FeatureScaler
	if config.ScalerPath != "" {
		scaler, err = frog.LoadScaler(config.ScalerPath)
		if err != nil {
			log.Fatalf("ERROR: failed to load scaler: %v", err)
		}
	}
	order, err := frog.LoadFeatureOrder(config.OrderPath)
	if err != nil {
		log.Fatalf("ERROR: failed to load feature order: %v", err)
	}
	adapter := frog.NewAdapter(model, scaler)

	log.Printf("Loaded model with %d classes: %s\n",
		len(adapter.Classes()), strings.Join(adapter.Classes(), ", "))

	samples, err := collectSamples(config.DataDir)
	if err != nil {
		log.Fatalf("ERROR: failed to read data directory: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("ERROR: no labelled audio files found")
	}
	log.Printf("Found %d labelled samples\n", len(samples))

	var results []evalResult
	correct := 0
	perClassTotal := map[string]int{}
	perClassCorrect := map[string]int{}

	for _, sample := range samples {
		result, err := evaluateOne(adapter, order, sample.path, sample.label)
		if err != nil {
			log.Printf("SKIP %s: %v\n", sample.path, err)
			continue
		}

		results = append(results, result)
		perClassTotal[result.Actual]++
		if result.Correct {
			correct++
			perClassCorrect[result.Actual]++
		}
	}

	if len(results) == 0 {
		log.Fatal("ERROR: no samples could be evaluated")
	}

	accuracy := float64(correct) / float64(len(results))
	log.Println()
	log.Printf("Overall accuracy: %.2f%% (%d/%d)\n", accuracy*100, correct, len(results))

	labels := make([]string, 0, len(perClassTotal))
	for label := range perClassTotal {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		log.Printf("  %-24s %.2f%% (%d/%d)\n", label,
			float64(perClassCorrect[label])/float64(perClassTotal[label])*100,
			perClassCorrect[label], perClassTotal[label])
	}

	if config.OutputCSV != "" {
		if err := writeCSV(config.OutputCSV, results); err != nil {
			log.Fatalf("ERROR: failed to write CSV: %v", err)
		}
		log.Printf("Wrote per-sample results to %s\n", config.OutputCSV)
	}
}

func parseFlags() evalConfig {
	var config evalConfig
	flag.StringVar(&config.ModelPath, "model", "model/model.json", "Model artifact path")
	flag.StringVar(&config.ScalerPath, "scaler", "", "Optional scaler artifact path")
	flag.StringVar(&config.OrderPath, "order", "model/feature_columns.json", "Feature order artifact path")
	flag.StringVar(&config.DataDir, "data", "", "Directory with one subdirectory per species")
	flag.StringVar(&config.OutputCSV, "csv", "", "Optional per-sample results CSV")
	flag.Parse()

	if config.DataDir == "" {
		log.Fatal("ERROR: -data is required")
	}
	return config
}

type labelledSample struct {
	path  string
	label string
}

func collectSamples(dir string) ([]labelledSample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var samples []labelledSample
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()

		files, err := os.ReadDir(filepath.Join(dir, label))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if !wav.SupportedExtension(filepath.Ext(file.Name())) {
				continue
			}
			samples = append(samples, labelledSample{
				path:  filepath.Join(dir, label, file.Name()),
				label: label,
			})
		}
	}
	return samples, nil
}

func evaluateOne(adapter *frog.Adapter, order []string, path, label string) (evalResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return evalResult{}, err
	}

	audio, err := wav.Decode(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return evalResult{}, err
	}

	started := time.Now()
	samples, err := frog.Normalize(audio.Channels, audio.SampleRate, true)
	if err != nil {
		return evalResult{}, err
	}

	features := frog.ExtractFeatures(samples, frog.TargetRate)
	vector, err := frog.OrderFeatures(features, order)
	if err != nil {
		return evalResult{}, err
	}

	prediction, top, _, err := adapter.PredictTop(vector)
	if err != nil {
		return evalResult{}, err
	}

	confidence := 0.0
	if len(top) > 0 {
		confidence = top[0].Confidence
	}

	return evalResult{
		File:       path,
		Actual:     label,
		Predicted:  prediction,
		Confidence: confidence,
		Correct:    prediction == label,
		LatencyMs:  time.Since(started).Seconds() * 1000,
	}, nil
}

func writeCSV(path string, results []evalResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"file", "actual", "predicted", "confidence", "correct", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			r.File, r.Actual, r.Predicted,
			fmt.Sprintf("%.4f", r.Confidence),
			fmt.Sprintf("%t", r.Correct),
			fmt.Sprintf("%.2f", r.LatencyMs),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}
