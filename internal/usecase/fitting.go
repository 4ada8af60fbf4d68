package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/logging"
	"github.com/example/fitmirror/internal/measurement"
	"github.com/example/fitmirror/internal/overlay"
	"github.com/example/fitmirror/internal/pose"
	"github.com/example/fitmirror/internal/repository"
	"github.com/example/fitmirror/internal/retry"
	"github.com/example/fitmirror/internal/sizing"
)

// SessionStore defines the persistence operations needed by the use case.
type SessionStore interface {
	SaveSession(ctx context.Context, session *repository.FittingSession) error
	FindByRequestIDAndShopper(ctx context.Context, requestID, shopperID string) (*repository.FittingSession, error)
	AggregateSessions(ctx context.Context) (*repository.SessionAggregation, error)
}

// Catalog resolves product ids to display data.
type Catalog interface {
	FindProduct(ctx context.Context, id string) (*repository.Product, error)
}

// Options tunes processing. Zero values fall back to defaults.
type Options struct {
	// Deadline bounds the time one request may spend decoding, detecting and rendering.
	Deadline   time.Duration
	Encoder    codec.Encoder
	Classifier sizing.Classifier
	Meter      metric.Meter
}

// DefaultDeadline applies when Options.Deadline is unset.
const DefaultDeadline = 10 * time.Second

// FittingUseCase runs the measurement and overlay pipelines for one frame
// per request. It keeps no per-request state between calls.
type FittingUseCase struct {
	detector   pose.Detector
	sessions   SessionStore
	catalog    Catalog
	cache      Cache
	classifier sizing.Classifier
	encoder    codec.Encoder
	deadline   time.Duration
	policy     retry.Policy
	metrics    *instruments
	logger     *zap.Logger
}

// NewFittingUseCase constructs a new use case instance.
func NewFittingUseCase(detector pose.Detector, sessions SessionStore, catalog Catalog, cache Cache, logger *zap.Logger, opts Options) *FittingUseCase {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Classifier == nil {
		opts.Classifier = sizing.PixelBandClassifier{}
	}
	if opts.Encoder.Format == "" {
		opts.Encoder.Format = codec.JPEG
	}
	return &FittingUseCase{
		detector:   detector,
		sessions:   sessions,
		catalog:    catalog,
		cache:      cache,
		classifier: opts.Classifier,
		encoder:    opts.Encoder,
		deadline:   opts.Deadline,
		policy:     retry.DefaultPolicy(),
		metrics:    newInstruments(opts.Meter),
		logger:     logger.Named("fitting_usecase"),
	}
}

// MirrorRequest is one try-on of a garment over an uploaded frame.
type MirrorRequest struct {
	ShopperID   string
	ProductID   string
	GarmentType string
	Image       []byte
}

// Recommendation is a size with its fixed confidence and the strategy that produced it.
type Recommendation struct {
	Size       sizing.Label `json:"size_label"`
	Confidence float64      `json:"confidence"`
	Strategy   string       `json:"strategy"`
}

// MirrorResult is the rendered overlay plus the size recommendation.
type MirrorResult struct {
	RequestID      string
	Garment        overlay.GarmentType
	Image          []byte
	ContentType    string
	Recommendation Recommendation
	Measurements   measurement.Set
	LandmarksCount int
	Product        *repository.Product
	CreatedAt      time.Time
}

// CompareRequest renders one overlay per size label.
type CompareRequest struct {
	ProductID string
	Sizes     []sizing.Label
	Image     []byte
}

// SizeRender is one comparison image.
type SizeRender struct {
	Size  sizing.Label
	Scale float64
	Image []byte
}

// CompareResult holds the comparison images in request order.
type CompareResult struct {
	RequestID    string
	ContentType  string
	Comparisons  []SizeRender
	Measurements measurement.Set
	Product      *repository.Product
	CreatedAt    time.Time
}

// SizeEstimate is the normalized-coordinate size detection.
type SizeEstimate struct {
	RequestID      string
	Recommendation Recommendation
	// ShoulderWidth and HipWidth are fractions of the frame width.
	ShoulderWidth float64
	HipWidth      float64
	Measurements  measurement.Set
}

type cachedSession struct {
	RequestID       string    `json:"request_id"`
	ShopperID       string    `json:"shopper_id"`
	ProductID       string    `json:"product_id"`
	GarmentType     string    `json:"garment_type"`
	SizeLabel       string    `json:"size_label"`
	Confidence      float64   `json:"confidence"`
	Strategy        string    `json:"strategy"`
	ShoulderWidthPx int       `json:"shoulder_width"`
	HipWidthPx      int       `json:"hip_width"`
	HeightPx        int       `json:"height"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProcessMirror composites the requested garment, recommends a size, and
// records the session.
func (uc *FittingUseCase) ProcessMirror(ctx context.Context, req MirrorRequest) (res *MirrorResult, err error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.process_mirror", requestID)
	start := time.Now()
	defer func() { uc.metrics.observe(ctx, "process_mirror", start, err) }()

	garment, err := overlay.ParseGarmentType(req.GarmentType)
	if err != nil {
		opLogger.Info("rejected garment type", zap.String("garment_type", req.GarmentType))
		return nil, logging.NewOperationError("usecase.parse_garment", requestID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.deadline)
	defer cancel()

	cacheKey := sessionKey(requestID)
	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.processing", requestID, func() error {
		return uc.cache.Set(ctx, cacheKey, processingValue(req.ShopperID), processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		// failed requests must not stay pending
		if delErr := uc.cache.Delete(context.WithoutCancel(ctx), cacheKey); delErr != nil {
			opLogger.Warn("failed to clear processing flag", zap.Error(delErr))
		}
	}()

	product, err := uc.lookupProduct(ctx, requestID, req.ProductID)
	if err != nil {
		opLogger.Warn("product lookup failed", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}

	frame, lms, err := uc.analyze(ctx, requestID, req.Image)
	if err != nil {
		opLogger.Info("frame analysis failed", zap.String("kind", ErrorKind(err)), zap.Error(err))
		return nil, err
	}

	m, err := measurement.Extract(lms, frame.Width(), frame.Height())
	if err != nil {
		return nil, logging.NewOperationError("usecase.measure", requestID, err)
	}
	rec := uc.recommend(ctx, uc.classifier, m)

	if err := overlay.Composite(frame, lms, garment); err != nil {
		return nil, logging.NewOperationError("usecase.composite", requestID, err)
	}
	encoded, err := uc.encode(ctx, requestID, frame)
	if err != nil {
		return nil, err
	}

	res = &MirrorResult{
		RequestID:      requestID,
		Garment:        garment,
		Image:          encoded,
		ContentType:    uc.encoder.Format.ContentType(),
		Recommendation: rec,
		Measurements:   m,
		LandmarksCount: len(lms),
		Product:        product,
		CreatedAt:      time.Now().UTC(),
	}

	snapshot, err := json.Marshal(lms)
	if err != nil {
		return nil, logging.NewOperationError("usecase.snapshot_landmarks", requestID, err)
	}
	session := &repository.FittingSession{
		RequestID:       requestID,
		ShopperID:       req.ShopperID,
		ProductID:       req.ProductID,
		GarmentType:     garment.String(),
		SizeLabel:       string(rec.Size),
		Confidence:      rec.Confidence,
		Strategy:        rec.Strategy,
		ShoulderWidthPx: m.ShoulderWidthPx,
		HipWidthPx:      m.HipWidthPx,
		HeightPx:        m.HeightPx,
		Landmarks:       datatypes.JSON(snapshot),
		CreatedAt:       res.CreatedAt,
	}
	if err := uc.sessions.SaveSession(ctx, session); err != nil {
		wrapped := logging.NewOperationError("usecase.save_session", requestID, err)
		opLogger.Error("failed to persist fitting session", zap.Error(wrapped))
		return nil, wrapped
	}

	serialized, err := json.Marshal(toCached(session))
	if err != nil {
		opLogger.Error("failed to serialize fitting session", zap.Error(err))
		return nil, err
	}
	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.result", requestID, func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache fitting session", zap.Error(err))
		return nil, err
	}

	opLogger.Info("mirror processed",
		zap.String("garment_type", garment.String()),
		zap.String("size", string(rec.Size)),
		zap.Float64("confidence", rec.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// CompareSizes renders the base top overlay once per requested size, each
// on an independent copy of the decoded frame.
func (uc *FittingUseCase) CompareSizes(ctx context.Context, req CompareRequest) (res *CompareResult, err error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.compare_sizes", requestID)
	start := time.Now()
	defer func() { uc.metrics.observe(ctx, "compare_sizes", start, err) }()

	if len(req.Sizes) == 0 {
		return nil, logging.NewOperationError("usecase.parse_sizes", requestID, ErrNoSizes)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.deadline)
	defer cancel()

	product, err := uc.lookupProduct(ctx, requestID, req.ProductID)
	if err != nil {
		opLogger.Warn("product lookup failed", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}

	frame, lms, err := uc.analyze(ctx, requestID, req.Image)
	if err != nil {
		opLogger.Info("frame analysis failed", zap.String("kind", ErrorKind(err)), zap.Error(err))
		return nil, err
	}

	m, err := measurement.Extract(lms, frame.Width(), frame.Height())
	if err != nil {
		return nil, logging.NewOperationError("usecase.measure", requestID, err)
	}

	variants, err := overlay.Compare(frame, lms, req.Sizes)
	if err != nil {
		return nil, logging.NewOperationError("usecase.compare", requestID, err)
	}

	renders := make([]SizeRender, 0, len(variants))
	for _, v := range variants {
		encoded, err := uc.encode(ctx, requestID, v.Frame)
		if err != nil {
			return nil, err
		}
		renders = append(renders, SizeRender{Size: v.Label, Scale: v.Scale, Image: encoded})
	}

	opLogger.Info("sizes compared", zap.Int("variants", len(renders)), zap.Duration("elapsed", time.Since(start)))
	return &CompareResult{
		RequestID:    requestID,
		ContentType:  uc.encoder.Format.ContentType(),
		Comparisons:  renders,
		Measurements: m,
		Product:      product,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DetectSize estimates a size from shoulder width as a fraction of the frame.
// Nothing is persisted.
func (uc *FittingUseCase) DetectSize(ctx context.Context, image []byte) (res *SizeEstimate, err error) {
	requestID := uuid.NewString()
	start := time.Now()
	defer func() { uc.metrics.observe(ctx, "detect_size", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, uc.deadline)
	defer cancel()

	frame, lms, err := uc.analyze(ctx, requestID, image)
	if err != nil {
		return nil, err
	}
	m, err := measurement.Extract(lms, frame.Width(), frame.Height())
	if err != nil {
		return nil, logging.NewOperationError("usecase.measure", requestID, err)
	}

	return &SizeEstimate{
		RequestID:      requestID,
		Recommendation: uc.recommend(ctx, sizing.NormalizedBandClassifier{}, m),
		ShoulderWidth:  m.NormalizedShoulderWidth(),
		HipWidth:       m.NormalizedHipWidth(),
		Measurements:   m,
	}, nil
}

// GetResult retrieves a cached fitting session or loads it from persistence.
func (uc *FittingUseCase) GetResult(ctx context.Context, shopperID, requestID string) (*repository.FittingSession, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	cached, found, err := uc.cachedResult(ctx, requestID)
	switch {
	case err != nil:
		opLogger.Warn("failed to read cache", zap.Error(err))
	case !found:
	case isProcessing(cached):
		if processingOwner(cached) == shopperID {
			return nil, logging.NewOperationError("usecase.get_result", requestID, ErrResultPending)
		}
	default:
		var payload cachedSession
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
		} else if payload.ShopperID == shopperID {
			return fromCached(payload), nil
		}
	}

	return uc.sessions.FindByRequestIDAndShopper(ctx, requestID, shopperID)
}

// cachedResult reads the cached session value. A miss reports found=false
// with a nil error.
func (uc *FittingUseCase) cachedResult(ctx context.Context, requestID string) (value string, found bool, err error) {
	err = retry.Do(ctx, uc.policy, uc.logger, "cache.get.result", requestID, func() error {
		v, err := uc.cache.Get(ctx, sessionKey(requestID))
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

// analyze decodes the upload and runs pose detection. The returned frame is
// owned by the caller.
func (uc *FittingUseCase) analyze(ctx context.Context, requestID string, data []byte) (*overlay.Frame, pose.Landmarks, error) {
	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, nil, logging.NewOperationError("usecase.decode", requestID, err)
	}
	frame, err := overlay.FromImage(img)
	if err != nil {
		return nil, nil, logging.NewOperationError("usecase.decode", requestID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, logging.NewOperationError("usecase.decode", requestID, err)
	}

	lms, err := uc.detector.Detect(ctx, frame.Image())
	if err != nil {
		return nil, nil, logging.NewOperationError("usecase.detect_pose", requestID, err)
	}
	if len(lms) == 0 {
		return nil, nil, logging.NewOperationError("usecase.detect_pose", requestID, pose.ErrPoseNotDetected)
	}
	return frame, lms, nil
}

func (uc *FittingUseCase) lookupProduct(ctx context.Context, requestID, productID string) (*repository.Product, error) {
	if productID == "" {
		return nil, nil
	}
	product, err := uc.catalog.FindProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, logging.NewOperationError("usecase.lookup_product", requestID, fmt.Errorf("%w: %w", ErrProductLookup, err))
	}
	if err != nil {
		return nil, logging.NewOperationError("usecase.lookup_product", requestID, err)
	}
	return product, nil
}

func (uc *FittingUseCase) recommend(ctx context.Context, c sizing.Classifier, m measurement.Set) Recommendation {
	label, confidence := c.Classify(m)
	uc.metrics.recommended(ctx, string(label), c.Name())
	return Recommendation{Size: label, Confidence: confidence, Strategy: c.Name()}
}

func (uc *FittingUseCase) encode(ctx context.Context, requestID string, frame *overlay.Frame) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, logging.NewOperationError("usecase.encode", requestID, err)
	}
	data, err := uc.encoder.Encode(frame.Image())
	if err != nil {
		return nil, logging.NewOperationError("usecase.encode", requestID, err)
	}
	return data, nil
}

func toCached(s *repository.FittingSession) cachedSession {
	return cachedSession{
		RequestID:       s.RequestID,
		ShopperID:       s.ShopperID,
		ProductID:       s.ProductID,
		GarmentType:     s.GarmentType,
		SizeLabel:       s.SizeLabel,
		Confidence:      s.Confidence,
		Strategy:        s.Strategy,
		ShoulderWidthPx: s.ShoulderWidthPx,
		HipWidthPx:      s.HipWidthPx,
		HeightPx:        s.HeightPx,
		CreatedAt:       s.CreatedAt,
	}
}

func fromCached(c cachedSession) *repository.FittingSession {
	return &repository.FittingSession{
		RequestID:       c.RequestID,
		ShopperID:       c.ShopperID,
		ProductID:       c.ProductID,
		GarmentType:     c.GarmentType,
		SizeLabel:       c.SizeLabel,
		Confidence:      c.Confidence,
		Strategy:        c.Strategy,
		ShoulderWidthPx: c.ShoulderWidthPx,
		HipWidthPx:      c.HipWidthPx,
		HeightPx:        c.HeightPx,
		CreatedAt:       c.CreatedAt,
	}
}
