package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/horse-id/internal/embedder"
	"github.com/example/horse-id/internal/imageprocessor"
	"github.com/example/horse-id/internal/logging"
)

// EmbedMethod is the full gRPC method name served by the inference service.
// The request is a PNG wrapped in google.protobuf.BytesValue and the reply
// is a google.protobuf.ListValue of numbers.
const EmbedMethod = "/horseid.embedding.v1.ImageEmbedder/Embed"

// DialEmbedder returns a ready-to-use model backed by the remote inference
// service.
func DialEmbedder(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteModel, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_embedder", "", err)
		logger.Error("failed to dial embedding service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRemoteModel(conn, logger), conn, nil
}

// RemoteModel implements embedder.Model over a gRPC connection.
type RemoteModel struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewRemoteModel wraps an existing connection.
func NewRemoteModel(conn grpc.ClientConnInterface, logger *zap.Logger) *RemoteModel {
	return &RemoteModel{conn: conn, logger: logger.Named("remote_model")}
}

// Infer ships img to the inference service and returns its raw embedding.
func (m *RemoteModel) Infer(ctx context.Context, img *imageprocessor.RGB) ([]float64, error) {
	payload, err := imageprocessor.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	reply := &structpb.ListValue{}
	if err := m.conn.Invoke(ctx, EmbedMethod, wrapperspb.Bytes(payload), reply); err != nil {
		wrapped := logging.NewOperationError("grpcclient.embed", "", err)
		m.logger.Error("embedding call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	out := make([]float64, len(reply.GetValues()))
	for i, v := range reply.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("grpcclient: component %d is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

var _ embedder.Model = (*RemoteModel)(nil)
