package review

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

const (
	ServiceName = "review.v1.ReviewService"

	CreateReviewTaskProcedure = "/" + ServiceName + "/CreateReviewTask"
	SubmitReviewProcedure     = "/" + ServiceName + "/SubmitReview"
)

// jsonCodec replaces connect's protojson codec so plain Go structs can be
// served without generated messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ConnectServer exposes the two workflows as unary connect procedures.
type ConnectServer struct {
	service *Service
}

func NewConnectServer(service *Service) *ConnectServer {
	return &ConnectServer{service: service}
}

func (s *ConnectServer) CreateReviewTask(ctx context.Context, req *connect.Request[CreateRequest]) (*connect.Response[CreateResult], error) {
	res, err := s.service.CreateReviewTask(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func (s *ConnectServer) SubmitReview(ctx context.Context, req *connect.Request[SubmitRequest]) (*connect.Response[SubmitResult], error) {
	res, err := s.service.SubmitReview(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// Handlers returns the procedure paths and handlers to mount on a mux.
func (s *ConnectServer) Handlers(opts ...connect.HandlerOption) map[string]http.Handler {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	return map[string]http.Handler{
		CreateReviewTaskProcedure: connect.NewUnaryHandler(CreateReviewTaskProcedure, s.CreateReviewTask, opts...),
		SubmitReviewProcedure:     connect.NewUnaryHandler(SubmitReviewProcedure, s.SubmitReview, opts...),
	}
}
