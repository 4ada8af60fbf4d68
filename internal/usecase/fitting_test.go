package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/logging"
	"github.com/example/fitmirror/internal/overlay"
	"github.com/example/fitmirror/internal/pose"
	"github.com/example/fitmirror/internal/pose/posetest"
	"github.com/example/fitmirror/internal/repository"
	"github.com/example/fitmirror/internal/sizing"
)

type stubSessions struct {
	saved     []*repository.FittingSession
	saveErr   error
	findLog   *repository.FittingSession
	findErr   error
	findCalls int
	agg       *repository.SessionAggregation
}

func (s *stubSessions) SaveSession(ctx context.Context, session *repository.FittingSession) error {
	s.saved = append(s.saved, session)
	return s.saveErr
}

func (s *stubSessions) FindByRequestIDAndShopper(ctx context.Context, requestID, shopperID string) (*repository.FittingSession, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findLog != nil {
		return s.findLog, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSessions) AggregateSessions(ctx context.Context) (*repository.SessionAggregation, error) {
	if s.agg == nil {
		return &repository.SessionAggregation{}, nil
	}
	return s.agg, nil
}

type stubCatalog struct {
	products map[string]*repository.Product
	err      error
	calls    int
}

func (s *stubCatalog) FindProduct(ctx context.Context, id string) (*repository.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrProductNotFound
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []interface{}
	deleted   []string
}

func (s *stubCache) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

type fixture struct {
	detector *posetest.Detector
	sessions *stubSessions
	catalog  *stubCatalog
	cache    *stubCache
	uc       *FittingUseCase
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, opts, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, opts Options, logger *zap.Logger) *fixture {
	t.Helper()
	f := &fixture{
		detector: &posetest.Detector{Landmarks: posetest.Standing()},
		sessions: &stubSessions{},
		catalog: &stubCatalog{products: map[string]*repository.Product{
			"shirt-1": {ID: "shirt-1", Name: "Linen shirt", GarmentType: "top", DisplayColor: "#ffc864"},
		}},
		cache: &stubCache{},
	}
	f.uc = NewFittingUseCase(f.detector, f.sessions, f.catalog, f.cache, logger, opts)
	return f
}

func frameBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 50, 50, 50, 255
	}
	data, err := codec.Encoder{Format: codec.PNG}.Encode(img)
	require.NoError(t, err)
	return data
}

func TestProcessMirrorEndToEnd(t *testing.T) {
	f := newFixture(t, Options{Encoder: codec.Encoder{Format: codec.PNG}})

	res, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{
		ShopperID:   "shopper-1",
		ProductID:   "shirt-1",
		GarmentType: "top",
		Image:       frameBytes(t, 640, 480),
	})
	require.NoError(t, err)

	assert.Equal(t, sizing.S, res.Recommendation.Size)
	assert.Equal(t, 0.92, res.Recommendation.Confidence)
	assert.Equal(t, "pixel_band", res.Recommendation.Strategy)
	assert.Equal(t, 192, res.Measurements.ShoulderWidthPx)
	assert.Equal(t, 166, res.Measurements.HipWidthPx)
	assert.Equal(t, pose.NumLandmarks, res.LandmarksCount)
	assert.Equal(t, overlay.Top, res.Garment)
	assert.Equal(t, "#ffc864", res.Product.DisplayColor)
	assert.Equal(t, "image/png", res.ContentType)

	img, _, err := codec.Decode(res.Image)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(640, 480), img.Bounds().Size())
	r, g, b, _ := img.At(200, 200).RGBA()
	assert.Equal(t, color.RGBA{R: 173, G: 140, B: 80, A: 255}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})

	require.Len(t, f.sessions.saved, 1)
	assert.Equal(t, "S", f.sessions.saved[0].SizeLabel)
	assert.Equal(t, "shopper-1", f.sessions.saved[0].ShopperID)
	var stored pose.Landmarks
	require.NoError(t, json.Unmarshal(f.sessions.saved[0].Landmarks, &stored))
	assert.Len(t, stored, pose.NumLandmarks)

	require.Len(t, f.cache.setKeys, 2)
	assert.Equal(t, "processing:shopper-1", f.cache.setValues[0])
	assert.Equal(t, f.cache.setKeys[0], f.cache.setKeys[1])
	assert.Empty(t, f.cache.deleted)

	var cached cachedSession
	require.NoError(t, json.Unmarshal([]byte(f.cache.setValues[1].(string)), &cached))
	assert.Equal(t, res.RequestID, cached.RequestID)
}

func TestProcessMirrorRejectsGarmentBeforeAnyWork(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "jewelry", Image: []byte("junk")})
	assert.ErrorIs(t, err, overlay.ErrUnsupportedGarment)
	assert.Equal(t, KindUnsupportedGarment, ErrorKind(err))
	assert.Zero(t, f.detector.Calls())
	assert.Empty(t, f.cache.setKeys)
	assert.Zero(t, f.catalog.calls)
}

func TestProcessMirrorDecodeFailure(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", Image: []byte("not an image")})
	assert.ErrorIs(t, err, codec.ErrDecodeFailure)
	assert.Equal(t, KindDecodeFailure, ErrorKind(err))
	assert.Zero(t, f.detector.Calls())
	assert.Empty(t, f.sessions.saved)
}

func TestProcessMirrorNoPose(t *testing.T) {
	f := newFixture(t, Options{})
	f.detector.Landmarks = nil
	f.detector.Err = pose.ErrPoseNotDetected

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "shoes", Image: frameBytes(t, 64, 48)})
	assert.ErrorIs(t, err, pose.ErrPoseNotDetected)
	assert.Equal(t, KindPoseNotDetected, ErrorKind(err))
	assert.Empty(t, f.sessions.saved)
}

func TestProcessMirrorEmptyLandmarksIsNoPose(t *testing.T) {
	f := newFixture(t, Options{})
	f.detector.Landmarks = pose.Landmarks{}

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", Image: frameBytes(t, 64, 48)})
	assert.ErrorIs(t, err, pose.ErrPoseNotDetected)
}

func TestProcessMirrorUnknownProduct(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", ProductID: "ghost", Image: frameBytes(t, 64, 48)})
	assert.ErrorIs(t, err, ErrProductLookup)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
	assert.Equal(t, KindProductLookup, ErrorKind(err))
	assert.Zero(t, f.detector.Calls())
}

func TestProcessMirrorCatalogOutageIsNotAProductMiss(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"deadline", context.DeadlineExceeded, KindDeadline},
		{"transport", errors.New("dial tcp 10.0.0.5:5432: connection refused"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.catalog.err = tt.err

			_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", ProductID: "shirt-1", Image: frameBytes(t, 64, 48)})
			require.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, ErrProductLookup)
			assert.Equal(t, tt.kind, ErrorKind(err))
		})
	}
}

func TestProcessMirrorClearsMarkerOnFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.detector.Landmarks = nil
	f.detector.Err = pose.ErrPoseNotDetected

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{ShopperID: "user", GarmentType: "top", Image: frameBytes(t, 64, 48)})
	require.ErrorIs(t, err, pose.ErrPoseNotDetected)
	require.Len(t, f.cache.setKeys, 1)
	assert.Equal(t, []string{f.cache.setKeys[0]}, f.cache.deleted)
}

func TestProcessMirrorHonoursDeadline(t *testing.T) {
	f := newFixture(t, Options{Deadline: 20 * time.Millisecond})
	f.detector.Hold = make(chan struct{})
	defer close(f.detector.Hold)

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", Image: frameBytes(t, 64, 48)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindDeadline, ErrorKind(err))
	assert.Empty(t, f.sessions.saved)
}

func TestProcessMirrorRetriesRedisSet(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.setErrs = []error{transientRedisError{}}

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "accessories", Image: frameBytes(t, 64, 48)})
	require.NoError(t, err)
	require.Len(t, f.cache.setKeys, 3)
	assert.Equal(t, f.cache.setKeys[0], f.cache.setKeys[1])
}

func TestProcessMirrorReturnsOperationErrorOnCacheFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.setErrs = []error{errors.New("boom")}

	_, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "top", Image: frameBytes(t, 64, 48)})
	var opErr *logging.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "cache.set.processing", opErr.Operation)
}

func TestProcessMirrorUsesConfiguredClassifier(t *testing.T) {
	f := newFixture(t, Options{Classifier: sizing.NormalizedBandClassifier{}})

	res, err := f.uc.ProcessMirror(context.Background(), MirrorRequest{GarmentType: "full_body", Image: frameBytes(t, 640, 480)})
	require.NoError(t, err)
	assert.Equal(t, sizing.M, res.Recommendation.Size)
	assert.Equal(t, "normalized_band", res.Recommendation.Strategy)
}

func TestCompareSizes(t *testing.T) {
	f := newFixture(t, Options{Encoder: codec.Encoder{Format: codec.PNG}})

	res, err := f.uc.CompareSizes(context.Background(), CompareRequest{
		Sizes: sizing.ParseLabels("S,M,L"),
		Image: frameBytes(t, 640, 480),
	})
	require.NoError(t, err)
	require.Len(t, res.Comparisons, 3)

	for i, want := range []sizing.Label{sizing.S, sizing.M, sizing.L} {
		c := res.Comparisons[i]
		assert.Equal(t, want, c.Size)
		assert.Equal(t, sizing.ScaleFactor(want), c.Scale)
		img, _, err := codec.Decode(c.Image)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(640, 480), img.Bounds().Size())
	}
	assert.NotEqual(t, res.Comparisons[0].Image, res.Comparisons[2].Image)
	assert.Equal(t, 192, res.Measurements.ShoulderWidthPx)
	assert.Empty(t, f.sessions.saved)
}

func TestCompareSizesRequiresLabels(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.uc.CompareSizes(context.Background(), CompareRequest{Image: frameBytes(t, 64, 48)})
	assert.ErrorIs(t, err, ErrNoSizes)
	assert.Zero(t, f.detector.Calls())
}

func TestDetectSizeUsesNormalizedStrategy(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.uc.DetectSize(context.Background(), frameBytes(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, sizing.M, res.Recommendation.Size)
	assert.Equal(t, sizing.NormalizedConfidence, res.Recommendation.Confidence)
	assert.InDelta(t, 0.30, res.ShoulderWidth, 1e-9)
	assert.InDelta(t, 0.26, res.HipWidth, 1e-9)
}

func TestGetResultFallsBackToRepositoryWhenCacheMiss(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.getErrs = []error{redis.Nil}
	expected := &repository.FittingSession{RequestID: "req", ShopperID: "user", SizeLabel: "M"}
	f.sessions.findLog = expected

	got, err := f.uc.GetResult(context.Background(), "user", "req")
	require.NoError(t, err)
	assert.Same(t, expected, got)
	assert.Equal(t, 1, f.sessions.findCalls)
}

func TestGetResultFromCache(t *testing.T) {
	f := newFixture(t, Options{})
	payload, err := json.Marshal(cachedSession{RequestID: "req", ShopperID: "user", SizeLabel: "XL", Confidence: 0.85})
	require.NoError(t, err)
	f.cache.getValues = []string{string(payload)}

	got, err := f.uc.GetResult(context.Background(), "user", "req")
	require.NoError(t, err)
	assert.Equal(t, "XL", got.SizeLabel)
	assert.Zero(t, f.sessions.findCalls)
}

func TestGetResultIgnoresOtherShoppersCache(t *testing.T) {
	f := newFixture(t, Options{})
	payload, err := json.Marshal(cachedSession{RequestID: "req", ShopperID: "owner"})
	require.NoError(t, err)
	f.cache.getValues = []string{string(payload)}

	_, err = f.uc.GetResult(context.Background(), "intruder", "req")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, 1, f.sessions.findCalls)
}

func TestGetResultPending(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.getValues = []string{processingValue("user")}

	_, err := f.uc.GetResult(context.Background(), "user", "req")
	assert.ErrorIs(t, err, ErrResultPending)
	assert.Zero(t, f.sessions.findCalls)
}

func TestGetResultAnonymousPending(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.getValues = []string{processingValue("")}

	_, err := f.uc.GetResult(context.Background(), "", "req")
	assert.ErrorIs(t, err, ErrResultPending)
}

func TestGetResultHidesOtherShoppersPending(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.getValues = []string{processingValue("owner")}

	_, err := f.uc.GetResult(context.Background(), "intruder", "req")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotErrorIs(t, err, ErrResultPending)
	assert.Equal(t, 1, f.sessions.findCalls)
}

func TestGetResultCacheMissIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixtureWithLogger(t, Options{}, zap.New(core))
	f.cache.getErrs = []error{redis.Nil}

	_, err := f.uc.GetResult(context.Background(), "user", "req")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "unexpected log entries: %v", logs.All())
}

func TestGetMetricsSummary(t *testing.T) {
	f := newFixture(t, Options{})
	f.sessions.agg = &repository.SessionAggregation{
		TotalCount:        3,
		AverageConfidence: 0.9,
		BySize:            []repository.SizeCount{{SizeLabel: "S", Count: 3, AverageConfidence: 0.9}},
	}

	summary, err := f.uc.GetMetricsSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalSessions)
	assert.Len(t, summary.BySize, 1)

	f.sessions.agg = nil
	summary, err = f.uc.GetMetricsSummary(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summary.BySize)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindOK, ErrorKind(nil))
	assert.Equal(t, KindMissingLandmarks, ErrorKind(pose.ErrMissingLandmarks))
	assert.Equal(t, KindInternal, ErrorKind(errors.New("other")))
	assert.Equal(t, KindDeadline, ErrorKind(logging.NewOperationError("x", "", context.DeadlineExceeded)))
}
