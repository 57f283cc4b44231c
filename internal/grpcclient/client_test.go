package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/horse-id/internal/imageprocessor"
	"github.com/example/horse-id/internal/logging"
)

type embedServer interface {
	Embed(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error)
}

var embedServiceDesc = grpc.ServiceDesc{
	ServiceName: "horseid.embedding.v1.ImageEmbedder",
	HandlerType: (*embedServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Embed",
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
			req := &wrapperspb.BytesValue{}
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(embedServer).Embed(ctx, req)
		},
	}},
}

type fakeService struct {
	reply    *structpb.ListValue
	err      error
	received []byte
}

func (f *fakeService) Embed(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error) {
	f.received = req.GetValue()
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func startServer(t *testing.T, svc *fakeService) *RemoteModel {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&embedServiceDesc, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	model, conn, err := DialEmbedder(context.Background(), "bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return model
}

func TestInferSendsPNGAndDecodesVector(t *testing.T) {
	reply, err := structpb.NewList([]interface{}{0.1, -1.0, 2.0})
	if err != nil {
		t.Fatalf("build reply: %v", err)
	}
	svc := &fakeService{reply: reply}
	model := startServer(t, svc)

	rgb := &imageprocessor.RGB{Width: 1, Height: 1, Pix: []uint8{10, 20, 30}}
	got, err := model.Infer(context.Background(), rgb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0.1, -1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	decoded, err := imageprocessor.Decode(svc.received)
	if err != nil {
		t.Fatalf("server received undecodable payload: %v", err)
	}
	if decoded.Format != "png" || decoded.Image.Width != 1 || decoded.Image.Height != 1 {
		t.Fatalf("unexpected payload: %s", decoded.Format)
	}
}

func TestInferWrapsServiceErrors(t *testing.T) {
	model := startServer(t, &fakeService{err: status.Error(codes.Unavailable, "warming up")})

	_, err := model.Infer(context.Background(), &imageprocessor.RGB{Width: 1, Height: 1, Pix: []uint8{0, 0, 0}})
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T (%v)", err, err)
	}
	if opErr.Operation != "grpcclient.embed" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestInferRejectsNonNumericComponents(t *testing.T) {
	reply, err := structpb.NewList([]interface{}{1.0, "oops"})
	if err != nil {
		t.Fatalf("build reply: %v", err)
	}
	model := startServer(t, &fakeService{reply: reply})

	if _, err := model.Infer(context.Background(), &imageprocessor.RGB{Width: 1, Height: 1, Pix: []uint8{0, 0, 0}}); err == nil {
		t.Fatal("expected error for non-numeric component")
	}
}
