package attribute

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPProvider calls an external attribute-analysis service over
// HTTP+JSON, authenticating with a short-lived HS256 service token
// (bearer token, JSON request, single http.Client with a fixed timeout).
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	signingKey []byte
	serviceID  string
	tokenTTL   time.Duration
}

// NewHTTPProvider builds a client pointed at baseURL, signing its own
// bearer tokens with signingKey.
func NewHTTPProvider(baseURL, serviceID, signingKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		signingKey: []byte(signingKey),
		serviceID:  serviceID,
		tokenTTL:   5 * time.Minute,
	}
}

type serviceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

func (p *HTTPProvider) serviceToken() (string, error) {
	now := time.Now().UTC()
	claims := serviceClaims{
		Service: p.serviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
			Subject:   p.serviceID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.signingKey)
}

type analyzeRequestItem struct {
	TrackID   int        `json:"trackId"`
	BBox      [4]float64 `json:"bbox"`
	CropJPEG  string     `json:"cropJpeg"`
	Timestamp int64      `json:"timestampMs"`
}

type analyzeResponseItem struct {
	Gender       string             `json:"gender"`
	AgeGroup     string             `json:"ageGroup"`
	Confidences  map[string]float64 `json:"confidences"`
	QualityScore float64            `json:"qualityScore"`
	HasMask      bool               `json:"hasMask"`
}

// Analyze sends crops for the given detections and decodes the
// provider's per-detection attribute response, in request order.
func (p *HTTPProvider) Analyze(ctx context.Context, detections []PersonDetection) ([]PersonAttributes, error) {
	if len(detections) == 0 {
		return nil, nil
	}

	items := make([]analyzeRequestItem, 0, len(detections))
	for _, d := range detections {
		encoded, err := encodeCropJPEG(d.Crop)
		if err != nil {
			return nil, fmt.Errorf("attribute: encode crop for track %d: %w", d.TrackID, err)
		}
		items = append(items, analyzeRequestItem{
			TrackID:   d.TrackID,
			BBox:      [4]float64{d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2},
			CropJPEG:  encoded,
			Timestamp: d.Timestamp.UnixMilli(),
		})
	}

	body, err := json.Marshal(struct {
		Detections []analyzeRequestItem `json:"detections"`
	}{Detections: items})
	if err != nil {
		return nil, fmt.Errorf("attribute: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/internal/attributes/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("attribute: build request: %w", err)
	}
	token, err := p.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("attribute: sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attribute: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attribute: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Attributes []analyzeResponseItem `json:"attributes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("attribute: decode response: %w", err)
	}

	out := make([]PersonAttributes, 0, len(decoded.Attributes))
	for _, a := range decoded.Attributes {
		out = append(out, PersonAttributes{
			Gender:       normalizeGender(a.Gender),
			AgeGroup:     normalizeAgeGroup(a.AgeGroup),
			Confidences:  a.Confidences,
			QualityScore: a.QualityScore,
			HasMask:      a.HasMask,
		})
	}
	return out, nil
}

func encodeCropJPEG(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil crop")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func normalizeGender(s string) Gender {
	switch Gender(s) {
	case GenderMale, GenderFemale:
		return Gender(s)
	default:
		return GenderUnknown
	}
}

func normalizeAgeGroup(s string) AgeGroup {
	switch AgeGroup(s) {
	case AgeChild, AgeYoung, AgeMiddle, AgeSenior:
		return AgeGroup(s)
	default:
		return AgeUnknown
	}
}
