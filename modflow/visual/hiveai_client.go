package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/groupmod/modbot/util"

	"github.com/carlmjohnson/versioninfo"
)

const hiveAPIURL = "https://api.thehive.ai/api/v2/task/sync"

// Hive class name for synthetic media, in the AI-generated media detection model
const hiveSyntheticClass = "ai_generated"

type HiveAIClient struct {
	Client   *http.Client
	ApiToken string
	// overridden in tests
	URL string
}

var _ Classifier = (*HiveAIClient)(nil)

// schema: https://docs.thehive.ai/reference/classification
type HiveAIResp struct {
	Status []HiveAIResp_Status `json:"status"`
}

type HiveAIResp_Status struct {
	Response HiveAIResp_Response `json:"response"`
}

type HiveAIResp_Response struct {
	Output []HiveAIResp_Out `json:"output"`
}

type HiveAIResp_Out struct {
	Time    float64            `json:"time"`
	Classes []HiveAIResp_Class `json:"classes"`
}

type HiveAIResp_Class struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

func NewHiveAIClient(token string) *HiveAIClient {
	return &HiveAIClient{
		Client:   util.RobustHTTPClient(),
		ApiToken: token,
		URL:      hiveAPIURL,
	}
}

// Highest score for the synthetic class across all outputs. Returns false if the class is missing from the response entirely.
func (resp *HiveAIResp) SyntheticScore() (float64, bool) {
	var best float64
	found := false
	for _, status := range resp.Status {
		for _, out := range status.Response.Output {
			for _, cls := range out.Classes {
				if cls.Class != hiveSyntheticClass {
					continue
				}
				if !found || cls.Score > best {
					best = cls.Score
				}
				found = true
			}
		}
	}
	return best, found
}

// Wraps the image as the "media" field of a multipart form.
func hiveUploadBody(image []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("media", "attachment.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func (hal *HiveAIClient) Classify(ctx context.Context, image []byte) (float64, error) {
	body, contentType, err := hiveUploadBody(image)
	if err != nil {
		return 0, err
	}
	endpoint := hal.URL
	if endpoint == "" {
		endpoint = hiveAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Token "+hal.ApiToken)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "modbot/"+versioninfo.Short())

	slog.Debug("classifying image with hive", "size", len(image))
	start := time.Now()
	res, err := hal.Client.Do(req)
	classifierAPIDuration.WithLabelValues("hive").Observe(time.Since(start).Seconds())
	if err != nil {
		classifierAPICount.WithLabelValues("hive", "error").Inc()
		return 0, fmt.Errorf("hive request: %w", err)
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues("hive", strconv.Itoa(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return 0, fmt.Errorf("hive request failed: statusCode=%d", res.StatusCode)
	}

	var out HiveAIResp
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("parsing hive response: %w", err)
	}
	score, ok := out.SyntheticScore()
	if !ok {
		return 0, fmt.Errorf("hive response missing %q class", hiveSyntheticClass)
	}
	return score, nil
}
