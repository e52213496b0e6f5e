package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
	"imagevault/internal/domain/image"
)

func newTestClient(url string) *Client {
	return NewClient(&config.Config{
		ScreenServiceURL: url,
		ScreenTimeout:    2 * time.Second,
	}, zerolog.Nop())
}

func TestClassifyParsesDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req detectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Image)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[{"label":"FACE_FEMALE","score":0.92},{"label":"BELLY_COVERED","score":0.4}]}`))
	}))
	defer srv.Close()

	detections, err := newTestClient(srv.URL).Classify(context.Background(), []byte("img-bytes"))
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, image.Detection{Label: "FACE_FEMALE", Score: 0.92}, detections[0])
}

func TestClassifyServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Classify(context.Background(), []byte("img-bytes"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, image.ErrClassifierUnavailable))
}

func TestClassifyConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).Classify(context.Background(), []byte("img-bytes"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, image.ErrClassifierUnavailable))
}
