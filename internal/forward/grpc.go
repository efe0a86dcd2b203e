package forward

import (
	"context"
	"fmt"
	"net"

	"github.com/blockworlds/geohist/internal/geom"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The engine speaks a single unary method whose request and response are
// google.protobuf.Struct:
//
//	request:  {cell_size: number, cells: [x0,y0,z0,x1,...], survey: [x,y,z,...], density: [...]}
//	response: {gz: [...]}
const computeMethod = "/geohist.GravityEngine/Compute"

// #region service
// GravityServiceClient is the client side of the engine service.
type GravityServiceClient interface {
	Compute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type gravityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGravityServiceClient binds the service to a connection.
func NewGravityServiceClient(cc grpc.ClientConnInterface) GravityServiceClient {
	return &gravityServiceClient{cc: cc}
}

func (c *gravityServiceClient) Compute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, computeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GravityServer is the server side of the engine service.
type GravityServer interface {
	Compute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGravityServer exposes srv on s.
func RegisterGravityServer(s grpc.ServiceRegistrar, srv GravityServer) {
	s.RegisterService(&gravityServiceDesc, srv)
}

var gravityServiceDesc = grpc.ServiceDesc{
	ServiceName: "geohist.GravityEngine",
	HandlerType: (*GravityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compute", Handler: computeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func computeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GravityServer).Compute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GravityServer).Compute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
// #endregion service

// #region client
// GRPCEngine is an Engine backed by a remote gravity service.
type GRPCEngine struct {
	conn   *grpc.ClientConn
	client GravityServiceClient
	log    *zap.Logger
}

// NewGRPCEngine connects to the gravity service at addr.
func NewGRPCEngine(addr string, log *zap.Logger) (*GRPCEngine, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	e := NewGRPCEngineWithService(NewGravityServiceClient(conn), log)
	e.conn = conn
	return e, nil
}

// NewGRPCEngineWithService creates a GRPCEngine with an injected service
// implementation. Used for testing without a real connection.
func NewGRPCEngineWithService(svc GravityServiceClient, log *zap.Logger) *GRPCEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCEngine{client: svc, log: log}
}

// Close shuts down the connection, if this engine owns one.
func (e *GRPCEngine) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// Gravity sends the mesh, stations and densities to the service.
func (e *GRPCEngine) Gravity(ctx context.Context, mesh Mesh, survey geom.Points, density []float64) ([]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"cell_size": structpb.NewNumberValue(mesh.CellSize()),
		"cells":     numberList(flatten(mesh.CellCenters())),
		"survey":    numberList(flatten(survey)),
		"density":   numberList(density),
	}}
	e.log.Debug("gravity request",
		zap.Int("cells", len(density)),
		zap.Int("stations", len(survey)),
	)
	resp, err := e.client.Compute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("compute rpc: %w", err)
	}
	gz, err := numbers(resp, "gz")
	if err != nil {
		return nil, fmt.Errorf("compute response: %w", err)
	}
	if len(gz) != len(survey) {
		return nil, fmt.Errorf("compute response: %d values for %d stations", len(gz), len(survey))
	}
	return gz, nil
}
// #endregion client

// #region server
// EngineServer serves a local Engine over the gravity service.
type EngineServer struct {
	engine Engine
	log    *zap.Logger
}

// NewEngineServer wraps engine.
func NewEngineServer(engine Engine, log *zap.Logger) *EngineServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &EngineServer{engine: engine, log: log}
}

func (s *EngineServer) Compute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h := req.GetFields()["cell_size"].GetNumberValue()
	if h <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "cell_size must be positive, got %g", h)
	}
	cells, err := points(req, "cells")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	survey, err := points(req, "survey")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	density, err := numbers(req, "density")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if len(density) != len(cells) {
		return nil, status.Errorf(codes.InvalidArgument, "%d densities for %d cells", len(density), len(cells))
	}
	gz, err := s.engine.Gravity(ctx, pointMesh{centers: cells, h: h}, survey, density)
	if err != nil {
		s.log.Error("gravity failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.log.Debug("gravity served", zap.Int("cells", len(cells)), zap.Int("stations", len(survey)))
	return &structpb.Struct{Fields: map[string]*structpb.Value{"gz": numberList(gz)}}, nil
}

// Serve answers the gravity service on lis with engine until ctx is done,
// then stops gracefully.
func Serve(ctx context.Context, lis net.Listener, engine Engine, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	srv := grpc.NewServer()
	RegisterGravityServer(srv, NewEngineServer(engine, log))

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		log.Info("stopping gravity engine")
		srv.GracefulStop()
	}()

	log.Info("serving gravity engine", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve %s: %w", lis.Addr(), err)
	}
	<-stopped
	return nil
}
// #endregion server

// #region wire
func flatten(pts geom.Points) []float64 {
	out := make([]float64, 0, 3*len(pts))
	for _, p := range pts {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

func numberList(v []float64) *structpb.Value {
	vals := make([]*structpb.Value, len(v))
	for i, x := range v {
		vals[i] = structpb.NewNumberValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func numbers(s *structpb.Struct, key string) ([]float64, error) {
	field, ok := s.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("field %q is not a list", key)
	}
	out := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("field %q[%d] is not a number", key, i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func points(s *structpb.Struct, key string) (geom.Points, error) {
	flat, err := numbers(s, key)
	if err != nil {
		return nil, err
	}
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("field %q has %d values, want a multiple of 3", key, len(flat))
	}
	pts := make(geom.Points, len(flat)/3)
	for i := range pts {
		pts[i] = r3.Vec{X: flat[3*i], Y: flat[3*i+1], Z: flat[3*i+2]}
	}
	return pts, nil
}
// #endregion wire
