package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"frog-classifier/db"
	"frog-classifier/frog"
	"frog-classifier/models"
	"frog-classifier/service"
	"frog-classifier/storage"
	"frog-classifier/utils"
	"frog-classifier/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

const maxUploadBytes = 64 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// writePredictionError maps pipeline failures onto HTTP statuses: malformed
// or unsupported input is the client's fault, a disabled audio path is a
// service condition, everything else is internal.
func writePredictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, frog.ErrDimensionMismatch),
		errors.Is(err, wav.ErrUnsupportedFormat),
		errors.Is(err, wav.ErrDecode):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAudioDisabled):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error during prediction")
	}
}

func allowCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

func newRootHandler(svc *service.PredictionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.URL.Path != "/" {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service":       "frog-classifier",
			"species":       svc.Classes(),
			"feature_count": svc.InputDim(),
			"audio_enabled": svc.AudioEnabled(),
			"endpoints": []string{
				"/health", "/predict", "/predict-audio", "/feedback",
				"/predictions", "/audio/{filename}", "/signed-url/{filename}",
			},
		})
	}
}

func newHealthHandler(svc *service.PredictionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"model_loaded":  true,
			"audio_enabled": svc.AudioEnabled(),
		})
	}
}

func newPredictHandler(svc *service.PredictionService) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "POST")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var request models.PredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			logger.ErrorContext(ctx, "failed to parse request body", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		if len(request.Features) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no features provided")
			return
		}

		response, err := svc.PredictVector(request.Features)
		if err != nil {
			logger.ErrorContext(ctx, "vector prediction failed", slog.Any("error", xerrors.New(err)))
			writePredictionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func newPredictAudioHandler(svc *service.PredictionService) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "POST")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "no audio file provided")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			logger.ErrorContext(ctx, "failed to read uploaded file", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "unable to read uploaded file")
			return
		}
		if len(data) == 0 {
			writeJSONError(w, http.StatusBadRequest, "uploaded file is empty")
			return
		}

		started := time.Now()
		response, err := svc.PredictAudio(r.Context(), data, header.Filename)
		if err != nil {
			logger.ErrorContext(ctx, "audio prediction failed",
				slog.Any("error", xerrors.New(err)),
				slog.String("filename", header.Filename))
			writePredictionError(w, err)
			return
		}

		logger.InfoContext(ctx, "audio prediction complete",
			slog.String("filename", header.Filename),
			slog.String("prediction", response.Prediction),
			slog.Float64("latency_ms", time.Since(started).Seconds()*1000),
		)
		writeJSON(w, http.StatusOK, response)
	}
}

func newFeedbackHandler(records db.RecordStore) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "POST")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if records == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "feedback storage is not configured")
			return
		}

		var feedback models.Feedback
		if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
			logger.ErrorContext(ctx, "failed to parse feedback payload", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid feedback payload")
			return
		}
		if feedback.PredictedSpecies == "" || feedback.ActualSpecies == "" {
			writeJSONError(w, http.StatusBadRequest, "predicted_species and actual_species are required")
			return
		}

		feedback.Timestamp = time.Now().UTC()
		if err := records.StoreFeedback(&feedback); err != nil {
			logger.ErrorContext(ctx, "failed to store feedback", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to store feedback")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "feedback recorded"})
	}
}

func newPredictionsHandler(records db.RecordStore) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "GET")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if records == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "prediction storage is not configured")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 1000 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a number between 1 and 1000")
				return
			}
			limit = parsed
		}

		predictions, err := records.GetRecentPredictions(limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list predictions", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to list predictions")
			return
		}
		if predictions == nil {
			predictions = []models.StorageRecord{}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"predictions": predictions,
			"count":       len(predictions),
		})
	}
}

// pathFilename extracts and validates the trailing path element of a
// single-object route. Anything with path separators is rejected so keys
// cannot escape the bucket namespace.
func pathFilename(path, prefix string) (string, bool) {
	name := strings.TrimPrefix(path, prefix)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", false
	}
	return name, true
}

func newAudioStreamHandler(objects *storage.Client) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "GET")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if objects == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "audio storage is not configured")
			return
		}

		filename, ok := pathFilename(r.URL.Path, "/audio/")
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "invalid filename")
			return
		}

		data, err := objects.Download(r.Context(), filename)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeJSONError(w, http.StatusNotFound, "recording not found")
				return
			}
			logger.ErrorContext(ctx, "failed to download recording",
				slog.Any("error", xerrors.New(err)),
				slog.String("filename", filename))
			writeJSONError(w, http.StatusInternalServerError, "failed to fetch recording")
			return
		}

		w.Header().Set("Content-Type", wav.ContentTypeForExtension(filepath.Ext(filename)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func newSignedURLHandler(objects *storage.Client) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "GET")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if objects == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "audio storage is not configured")
			return
		}

		filename, ok := pathFilename(r.URL.Path, "/signed-url/")
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "invalid filename")
			return
		}

		expires := service.SignedURLTTL
		if raw := r.URL.Query().Get("expires_in"); raw != "" {
			seconds, err := strconv.Atoi(raw)
			if err != nil || seconds <= 0 || seconds > 7*24*3600 {
				writeJSONError(w, http.StatusBadRequest, "expires_in must be a positive number of seconds up to one week")
				return
			}
			expires = time.Duration(seconds) * time.Second
		}

		url, err := objects.SignedURL(r.Context(), filename, expires)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create signed url",
				slog.Any("error", xerrors.New(err)),
				slog.String("filename", filename))
			writeJSONError(w, http.StatusInternalServerError, "failed to create signed url")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"signed_url": url,
			"expires_in": int(expires.Seconds()),
		})
	}
}

// loadFeatureOrder loads the canonical feature ordering the audio pipeline
// maps extracted features with. A missing file or an ordering whose length
// does not match the model disables audio uploads; vector requests keep
// working either way.
func loadFeatureOrder(path string, inputDim int) []string {
	order, err := frog.LoadFeatureOrder(path)
	if err != nil {
		log.Printf("WARNING: failed to load feature order from %s: %v (audio uploads disabled)\n", path, err)
		return nil
	}
	if len(order) != inputDim {
		log.Printf("WARNING: feature order from %s has %d entries but model expects %d (audio uploads disabled)\n", path, len(order), inputDim)
		return nil
	}
	return order
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	logger := utils.GetLogger()
	ctx := context.Background()
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	modelPath := utils.GetEnv("MODEL_PATH", "model/model.json")
	model, err := frog.LoadModel(modelPath)
	if err != nil {
		log.Fatalf("failed to load model from %s: %v", modelPath, err)
	}

	// The scaler is optional: models trained on raw features ship without one
	var scaler *frog.FeatureScaler
	scalerPath := utils.GetEnv("SCALER_PATH", "")
	if scalerPath != "" {
		scaler, err = frog.LoadScaler(scalerPath)
		if err != nil {
			log.Printf("WARNING: failed to load scaler from %s: %v (continuing without scaling)\n", scalerPath, err)
			scaler = nil
		}
	}
	adapter := frog.NewAdapter(model, scaler)

	featuresPath := utils.GetEnv("FEATURES_PATH", "model/feature_columns.json")
	featureOrder := loadFeatureOrder(featuresPath, model.InputDim())

	var objects *storage.Client
	storageCfg := storage.Config{
		Endpoint:  utils.GetEnv("S3_ENDPOINT", ""),
		Region:    utils.GetEnv("S3_REGION", ""),
		AccessKey: utils.GetEnv("S3_ACCESS_KEY", ""),
		SecretKey: utils.GetEnv("S3_SECRET_KEY", ""),
		Bucket:    utils.GetEnv("S3_BUCKET", "frog-user-recordings"),
	}
	if storageCfg.Complete() {
		objects, err = storage.New(storageCfg)
		if err != nil {
			log.Printf("WARNING: failed to configure object storage: %v (recordings will not be stored)\n", err)
		}
	} else {
		log.Println("Object storage not configured, recordings will not be stored")
	}

	records, err := db.NewRecordStore()
	if err != nil {
		log.Printf("WARNING: failed to connect to database: %v (prediction records will not be stored)\n", err)
		records = nil
	}

	saveUploads := strings.EqualFold(utils.GetEnv("SAVE_AUDIO_UPLOADS", "true"), "true")

	inference := &service.InferenceContext{
		Adapter:      adapter,
		FeatureOrder: featureOrder,
	}
	if objects != nil {
		inference.Objects = objects
	}
	if records != nil {
		inference.Records = records
	}

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	controller := newSocketController(server)
	svc := service.NewPredictionService(inference, controller, saveUploads, logger)
	controller.service = svc

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		log.Printf("requestModelInfo received from %s\n", socket.ID())
		controller.handleRequestModelInfo(socket)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	logger.InfoContext(ctx, "model loaded",
		slog.String("path", modelPath),
		slog.Int("inputDim", adapter.InputDim()),
		slog.Int("classCount", len(adapter.Classes())),
		slog.Bool("scaled", scaler != nil),
		slog.Bool("probabilities", adapter.HasProbabilities()),
		slog.Bool("audioEnabled", svc.AudioEnabled()),
	)

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/", newRootHandler(svc))
	mux.HandleFunc("/health", newHealthHandler(svc))
	mux.HandleFunc("/predict", newPredictHandler(svc))
	mux.HandleFunc("/predict-audio", newPredictAudioHandler(svc))
	mux.HandleFunc("/feedback", newFeedbackHandler(records))
	mux.HandleFunc("/predictions", newPredictionsHandler(records))
	mux.HandleFunc("/audio/", newAudioStreamHandler(objects))
	mux.HandleFunc("/signed-url/", newSignedURLHandler(objects))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key_default := "/etc/letsencrypt/live/localport.online/privkey.pem"
		cert_file_default := "/etc/letsencrypt/live/localport.online/fullchain.pem"

		cert_key := utils.GetEnv("CERT_KEY", cert_key_default)
		cert_file := utils.GetEnv("CERT_FILE", cert_file_default)
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
