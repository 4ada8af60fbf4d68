package grpcclient

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/logging"
	"github.com/example/fitmirror/internal/pose"
)

// DetectMethod is the unary RPC served by the pose landmarker sidecar. The
// request is a BytesValue holding a PNG frame; the response is a Struct with
// a "landmarks" list of {x, y, z, visibility} objects, empty when no body was found.
const DetectMethod = "/fitmirror.pose.v1.PoseLandmarker/Detect"

// DialPoseLandmarker opens a connection to the landmarker service.
func DialPoseLandmarker(ctx context.Context, addr string, logger *zap.Logger) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_pose_landmarker", "", err)
		logger.Error("failed to dial pose landmarker", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return conn, nil
}

// PoseDetector calls the landmarker over an established connection.
type PoseDetector struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewPoseDetector builds a detector on conn. Several detectors may share one
// connection; each stands for one inference slot on the server.
func NewPoseDetector(conn grpc.ClientConnInterface, logger *zap.Logger) *PoseDetector {
	return &PoseDetector{conn: conn, logger: logger.Named("pose_detector")}
}

// Detect implements pose.Detector.
func (d *PoseDetector) Detect(ctx context.Context, frame image.Image) (pose.Landmarks, error) {
	payload, err := codec.Encoder{Format: codec.PNG}.Encode(frame)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_frame", "", err)
	}

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(payload), resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, pose.ErrPoseNotDetected
		}
		wrapped := logging.NewOperationError("grpcclient.detect_pose", "", err)
		d.logger.Error("pose landmarker call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return DecodeLandmarks(resp)
}

// DecodeLandmarks converts a landmarker response into a validated sequence.
func DecodeLandmarks(resp *structpb.Struct) (pose.Landmarks, error) {
	values := resp.GetFields()["landmarks"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, pose.ErrPoseNotDetected
	}

	lms := make(pose.Landmarks, len(values))
	for i, v := range values {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("landmark %d: not an object", i)
		}
		lms[i] = pose.Landmark{
			Index:      i,
			X:          fields["x"].GetNumberValue(),
			Y:          fields["y"].GetNumberValue(),
			Z:          fields["z"].GetNumberValue(),
			Visibility: fields["visibility"].GetNumberValue(),
		}
	}
	if err := lms.Validate(); err != nil {
		return nil, err
	}
	return lms, nil
}
