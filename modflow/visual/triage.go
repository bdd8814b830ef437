package visual

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groupmod/modbot/modflow/cachestore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Probabilities strictly above this are flagged.
const DefaultThreshold = 0.5

const DefaultTimeout = 10 * time.Second

// Content types (lower-case, without parameters) which are eligible for classification.
var allowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/tiff": true,
	"image/bmp":  true,
}

type Attachment struct {
	URL         string
	ContentType string
	Filename    string
}

// Result of evaluating a single message.
type Verdict struct {
	// true if the classifier produced a score (from the API or the cache)
	Evaluated bool
	Flagged   bool
	// raw classifier probability
	Score      float64
	Attachment *Attachment
	// set when evaluation failed; the verdict is then not flagged
	Err error
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Returns the first attachment with an allow-listed content type, or ErrNoImage. Later attachments are not considered.
func SelectAttachment(atts []Attachment) (*Attachment, error) {
	for i := range atts {
		if allowedContentTypes[normalizeContentType(atts[i].ContentType)] {
			return &atts[i], nil
		}
	}
	return nil, ErrNoImage
}

// Decides whether a public message should be auto-flagged, based on a Classifier score for its first image attachment. Fails open: any fetch, decode or classifier failure results in a not-flagged verdict.
type TriageClassifier struct {
	Classifier Classifier
	Fetcher    Fetcher
	// optional
	Cache     cachestore.CacheStore
	Limiter   *rate.Limiter
	Timeout   time.Duration
	Threshold float64
	Logger    *slog.Logger
}

type TriageConfig struct {
	Cache cachestore.CacheStore
	// classifier calls per second; zero means unlimited
	RateLimit float64
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewTriageClassifier(cl Classifier, fetcher Fetcher, config TriageConfig) *TriageClassifier {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &TriageClassifier{
		Classifier: cl,
		Fetcher:    fetcher,
		Cache:      config.Cache,
		Limiter:    limiter,
		Timeout:    timeout,
		Threshold:  DefaultThreshold,
		Logger:     logger.With("component", "triage"),
	}
}

func (tc *TriageClassifier) Evaluate(ctx context.Context, atts []Attachment) Verdict {
	att, err := SelectAttachment(atts)
	if err != nil {
		triageVerdictCount.WithLabelValues("skipped").Inc()
		return Verdict{}
	}

	ctx, span := tracer.Start(ctx, "TriageEvaluate")
	defer span.End()
	span.SetAttributes(attribute.String("content_type", normalizeContentType(att.ContentType)))

	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	score, err := tc.score(ctx, att)
	if err != nil {
		tc.Logger.Warn("triage failed, treating as not flagged", "url", att.URL, "filename", att.Filename, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		triageVerdictCount.WithLabelValues("error").Inc()
		return Verdict{Attachment: att, Err: err}
	}

	threshold := tc.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	v := Verdict{
		Evaluated:  true,
		Flagged:    score > threshold,
		Score:      score,
		Attachment: att,
	}
	triageScores.Observe(score)
	span.SetAttributes(attribute.Float64("score", score), attribute.Bool("flagged", v.Flagged))
	if v.Flagged {
		triageVerdictCount.WithLabelValues("flagged").Inc()
	} else {
		triageVerdictCount.WithLabelValues("clear").Inc()
	}
	tc.Logger.Debug("triage verdict", "url", att.URL, "score", score, "flagged", v.Flagged)
	return v
}

func (tc *TriageClassifier) score(ctx context.Context, att *Attachment) (float64, error) {
	raw, err := tc.Fetcher.Fetch(ctx, att.URL)
	if err != nil {
		return 0, err
	}

	digest := cachestore.Digest(raw)
	if tc.Cache != nil {
		score, ok, err := tc.Cache.GetScore(ctx, digest)
		if err != nil {
			tc.Logger.Warn("score cache read failed", "err", err)
		} else if ok {
			scoreCacheHits.Inc()
			return score, nil
		}
	}

	img, format, err := NormalizeJPEG(raw)
	if err != nil {
		return 0, err
	}
	tc.Logger.Debug("classifying attachment", "url", att.URL, "format", format, "size", len(img))

	if tc.Limiter != nil {
		if err := tc.Limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("classifier rate limit: %w", err)
		}
	}

	score, err := tc.Classifier.Classify(ctx, img)
	if err != nil {
		return 0, err
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("classifier returned out-of-range probability: %f", score)
	}

	if tc.Cache != nil {
		if err := tc.Cache.SetScore(ctx, digest, score); err != nil {
			tc.Logger.Warn("score cache write failed", "err", err)
		}
	}
	return score, nil
}
