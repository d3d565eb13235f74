package visualiser

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method name of the stream RPC. Both messages are
// google.protobuf.Struct.
const (
	ServiceName       = "overlay.v1.TrackStream"
	StreamTracksRoute = "/" + ServiceName + "/StreamTracks"
)

// TrackStreamServer is the server API for the TrackStream service.
type TrackStreamServer interface {
	StreamTracks(req *structpb.Struct, stream grpc.ServerStream) error
}

// TrackStreamServiceDesc describes the service for grpc.Server.
var TrackStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackStreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamTracks",
		Handler:       streamTracksHandler,
		ServerStreams: true,
	}},
	Metadata: "overlay/v1/track_stream.proto",
}

// RegisterTrackStreamServer registers srv on s.
func RegisterTrackStreamServer(s grpc.ServiceRegistrar, srv TrackStreamServer) {
	s.RegisterService(&TrackStreamServiceDesc, srv)
}

func streamTracksHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TrackStreamServer).StreamTracks(req, stream)
}

// Server implements TrackStreamServer on top of a Publisher.
type Server struct {
	publisher *Publisher
}

var _ TrackStreamServer = (*Server)(nil)

// NewServer returns a Server streaming from p.
func NewServer(p *Publisher) *Server {
	return &Server{publisher: p}
}

// StreamTracks sends every published frame, filtered by the request, until
// the client goes away or the publisher stops.
func (s *Server) StreamTracks(reqMsg *structpb.Struct, stream grpc.ServerStream) error {
	req := DecodeRequest(reqMsg)
	client, err := s.publisher.addClient(req)
	if errors.Is(err, errTooManyClients) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "server stopping")
		case b := <-client.frameCh:
			msg, err := EncodeFrame(b)
			if err != nil {
				log.Printf("[gRPC] %v", err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// TrackStreamClient receives frames from StreamTracks.
type TrackStreamClient struct {
	stream grpc.ClientStream
}

// StreamTracks opens a frame stream on cc.
func StreamTracks(ctx context.Context, cc grpc.ClientConnInterface, req StreamRequest, opts ...grpc.CallOption) (*TrackStreamClient, error) {
	msg, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	stream, err := cc.NewStream(ctx, &TrackStreamServiceDesc.Streams[0], StreamTracksRoute, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(msg); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &TrackStreamClient{stream: stream}, nil
}

// Recv blocks for the next frame.
func (c *TrackStreamClient) Recv() (*FrameBundle, error) {
	msg := new(structpb.Struct)
	if err := c.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return DecodeFrame(msg)
}
