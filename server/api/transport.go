package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/hetsync/server"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

var ErrInvalidLimit = errors.New("limit must be a non-negative integer")

func MakeHandler(svc server.AdminService, logger *slog.Logger) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerBefore(kithttp.PopulateRequestContext),
		kithttp.ServerErrorEncoder(encodeError(logger)),
	}

	mux := chi.NewRouter()

	mux.Get("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Get("/round", kithttp.NewServer(
		MakeRoundEndpoint(svc),
		decodeEmptyRequest,
		encodeJSONResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/rounds", kithttp.NewServer(
		MakeRoundsEndpoint(svc),
		decodeRoundsRequest,
		encodeJSONResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/workers", kithttp.NewServer(
		MakeWorkersEndpoint(svc),
		decodeEmptyRequest,
		encodeJSONResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/model", kithttp.NewServer(
		MakeModelEndpoint(svc),
		decodeEmptyRequest,
		encodeModelResponse,
		opts...,
	).ServeHTTP)

	return otelhttp.NewHandler(mux, "hetsync-admin")
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func decodeEmptyRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return struct{}{}, nil
}

func decodeRoundsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	req := roundsReq{}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, ErrInvalidLimit
		}
		req.Limit = limit
	}

	return req, nil
}

func encodeJSONResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	w.Header().Set("Content-Type", contentTypeJSON)
	return json.NewEncoder(w).Encode(response)
}

// encodeModelResponse answers in CBOR when the client asks for it and in
// JSON otherwise.
func encodeModelResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	accept, _ := ctx.Value(kithttp.ContextKeyRequestAccept).(string)
	if !strings.Contains(accept, contentTypeCBOR) {
		return encodeJSONResponse(ctx, w, response)
	}

	res := response.(modelRes)
	data, err := cbor.Marshal(res.Model)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", contentTypeCBOR)
	_, err = w.Write(data)

	return err
}

func encodeError(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(_ context.Context, err error, w http.ResponseWriter) {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidLimit) {
			status = http.StatusBadRequest
		} else {
			logger.Error("Admin request failed", slog.Any("error", err))
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
}
