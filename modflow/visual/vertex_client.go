package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/groupmod/modbot/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const vertexScope = "https://www.googleapis.com/auth/cloud-platform"

// Client for an image classification model deployed to a Google Vertex AI endpoint.
type VertexClient struct {
	Client *http.Client
	// full ":predict" URL of the endpoint
	PredictURL string
	// display name of the synthetic class. If empty, the second confidence in the prediction is used.
	Label string
}

var _ Classifier = (*VertexClient)(nil)

type VertexConfig struct {
	// service account key, JSON encoded
	CredentialsJSON []byte
	// defaults to the project of the service account
	Project    string
	Region     string
	EndpointID string
	Label      string
	Logger     *slog.Logger
}

type vertexRequest struct {
	Instances  []vertexInstance `json:"instances"`
	Parameters vertexParameters `json:"parameters"`
}

type vertexInstance struct {
	Content string `json:"content"`
}

type vertexParameters struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MaxPredictions      int     `json:"maxPredictions"`
}

// schema: https://cloud.google.com/vertex-ai/docs/image-data/classification/get-predictions
type VertexResp struct {
	Predictions     []VertexPrediction `json:"predictions"`
	DeployedModelID string             `json:"deployedModelId"`
}

type VertexPrediction struct {
	IDs          []string  `json:"ids"`
	DisplayNames []string  `json:"displayNames"`
	Confidences  []float64 `json:"confidences"`
}

func NewVertexClient(ctx context.Context, config VertexConfig) (*VertexClient, error) {
	if config.Region == "" || config.EndpointID == "" {
		return nil, errors.New("vertex classifier requires a region and endpoint id")
	}
	jwtConf, err := google.JWTConfigFromJSON(config.CredentialsJSON, vertexScope)
	if err != nil {
		return nil, fmt.Errorf("parsing vertex credentials: %w", err)
	}
	project := config.Project
	if project == "" {
		var key struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(config.CredentialsJSON, &key); err != nil || key.ProjectID == "" {
			return nil, errors.New("vertex project not configured and not found in credentials")
		}
		project = key.ProjectID
	}
	if config.Label == "" {
		logger := config.Logger
		if logger == nil {
			logger = slog.Default()
		}
		// AutoML sorts classes by confidence, so a fixed index is not tied to a class
		logger.Warn("no vertex label configured, using the second confidence of each prediction as the synthetic score", "endpoint", config.EndpointID)
	}

	base := util.RobustHTTPClient()
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: jwtConf.TokenSource(ctx),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}
	return &VertexClient{
		Client:     client,
		PredictURL: fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/endpoints/%s:predict", config.Region, project, config.Region, config.EndpointID),
		Label:      config.Label,
	}, nil
}

// Picks the synthetic class confidence out of the first prediction.
func (resp *VertexResp) SyntheticScore(label string) (float64, error) {
	if len(resp.Predictions) == 0 {
		return 0, errors.New("vertex response has no predictions")
	}
	pred := resp.Predictions[0]
	if label != "" {
		for i, name := range pred.DisplayNames {
			if name == label && i < len(pred.Confidences) {
				return pred.Confidences[i], nil
			}
		}
		return 0, fmt.Errorf("vertex prediction missing label %q", label)
	}
	if len(pred.Confidences) < 2 {
		return 0, fmt.Errorf("vertex prediction has %d confidences", len(pred.Confidences))
	}
	return pred.Confidences[1], nil
}

func (vc *VertexClient) Classify(ctx context.Context, image []byte) (float64, error) {
	payload, err := json.Marshal(vertexRequest{
		Instances: []vertexInstance{{Content: base64.StdEncoding.EncodeToString(image)}},
		Parameters: vertexParameters{
			ConfidenceThreshold: 0,
			MaxPredictions:      5,
		},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", vc.PredictURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "modbot/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		classifierAPIDuration.WithLabelValues("vertex").Observe(time.Since(start).Seconds())
	}()

	res, err := vc.Client.Do(req)
	if err != nil {
		classifierAPICount.WithLabelValues("vertex", "error").Inc()
		return 0, fmt.Errorf("vertex predict request failed: %w", err)
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues("vertex", fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vertex predict request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read vertex resp body: %w", err)
	}
	var respObj VertexResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return 0, fmt.Errorf("failed to parse vertex resp JSON: %w", err)
	}
	return respObj.SyntheticScore(vc.Label)
}
