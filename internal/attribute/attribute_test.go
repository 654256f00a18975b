package attribute

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGateRejectsBelowMinimumCropSize(t *testing.T) {
	g := NewGate(GateConfig{EveryNFrames: 30, MinCropW: 64, MinCropH: 64})
	require.False(t, g.Allow(1, 0, 32, 32))
}

func TestGateAllowsFirstCallThenWaitsNFrames(t *testing.T) {
	g := NewGate(GateConfig{EveryNFrames: 30, MinCropW: 64, MinCropH: 64})
	require.True(t, g.Allow(1, 0, 100, 100))
	require.False(t, g.Allow(1, 10, 100, 100))
	require.False(t, g.Allow(1, 29, 100, 100))
	require.True(t, g.Allow(1, 30, 100, 100))
}

func TestGateTracksCadenceIndependentlyPerTrack(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	require.True(t, g.Allow(1, 0, 100, 100))
	require.True(t, g.Allow(2, 1, 100, 100))
}

func TestGateForgetResetsCadence(t *testing.T) {
	g := NewGate(GateConfig{EveryNFrames: 30, MinCropW: 64, MinCropH: 64})
	require.True(t, g.Allow(1, 0, 100, 100))
	g.Forget(1)
	require.True(t, g.Allow(1, 1, 100, 100))
}

func testCrop() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	return img
}

func TestHTTPProviderAnalyzeSendsBearerAndDecodesResponse(t *testing.T) {
	signingKey := "test-signing-key"
	var gotAuth string
	var gotBody struct {
		Detections []analyzeRequestItem `json:"detections"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := struct {
			Attributes []analyzeResponseItem `json:"attributes"`
		}{
			Attributes: []analyzeResponseItem{
				{Gender: "female", AgeGroup: "young", Confidences: map[string]float64{"gender": 0.9}, QualityScore: 0.8, HasMask: false},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "vision-engine", signingKey, time.Second)
	dets := []PersonDetection{
		{TrackID: 5, BBox: BBox{X1: 0, Y1: 0, X2: 80, Y2: 80}, Crop: testCrop(), Timestamp: time.Now().UTC()},
	}

	out, err := provider.Analyze(context.Background(), dets)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, GenderFemale, out[0].Gender)
	require.Equal(t, AgeYoung, out[0].AgeGroup)
	require.InDelta(t, 0.8, out[0].QualityScore, 1e-9)

	require.Len(t, gotBody.Detections, 1)
	require.Equal(t, 5, gotBody.Detections[0].TrackID)

	require.Contains(t, gotAuth, "Bearer ")
	tokenStr := gotAuth[len("Bearer "):]
	parsed, err := jwt.ParseWithClaims(tokenStr, &serviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(signingKey), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims := parsed.Claims.(*serviceClaims)
	require.Equal(t, "vision-engine", claims.Service)
}

func TestHTTPProviderAnalyzeEmptyInputIsNoOp(t *testing.T) {
	provider := NewHTTPProvider("http://unused.invalid", "svc", "key", time.Second)
	out, err := provider.Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestHTTPProviderAnalyzeNonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "svc", "key", time.Second)
	_, err := provider.Analyze(context.Background(), []PersonDetection{
		{TrackID: 1, BBox: BBox{X2: 80, Y2: 80}, Crop: testCrop(), Timestamp: time.Now().UTC()},
	})
	require.Error(t, err)
}

func TestNormalizeGenderUnknownFallback(t *testing.T) {
	require.Equal(t, GenderUnknown, normalizeGender("nonsense"))
	require.Equal(t, GenderMale, normalizeGender("male"))
}

func TestNormalizeAgeGroupUnknownFallback(t *testing.T) {
	require.Equal(t, AgeUnknown, normalizeAgeGroup("nonsense"))
	require.Equal(t, AgeSenior, normalizeAgeGroup("senior"))
}
