package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Every method takes
// and returns a google.protobuf.Struct.
const ServiceName = "learnkeeper.v1.LearnKeeper"

const (
	MethodPing              = "Ping"
	MethodSignUp            = "SignUp"
	MethodSignIn            = "SignIn"
	MethodCompleteMFA       = "CompleteMFA"
	MethodSignOut           = "SignOut"
	MethodSignOutEverywhere = "SignOutEverywhere"
	MethodGetAccount        = "GetAccount"
	MethodSaveProgress      = "SaveProgress"
	MethodChangePassword    = "ChangePassword"
	MethodDeleteAccount     = "DeleteAccount"
	MethodCreateInstitution = "CreateInstitution"
	MethodJoinInstitution   = "JoinInstitution"
	MethodLeaveInstitution  = "LeaveInstitution"
	MethodDeleteInstitution = "DeleteInstitution"
	MethodCheckIfPaidFor    = "CheckIfPaidFor"
	MethodStartCheckout     = "StartCheckout"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Access is the session a method requires.
type Access int

const (
	Public Access = iota
	MFAPending
	Authenticated
)

type handlerFunc func(s *GRPCServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

type route struct {
	name   string
	access Access
	call   handlerFunc
}

var routes = []route{
	{MethodPing, Public, (*GRPCServer).ping},
	{MethodSignUp, Public, (*GRPCServer).signUp},
	{MethodSignIn, Public, (*GRPCServer).signIn},
	{MethodCompleteMFA, MFAPending, (*GRPCServer).completeMFA},
	{MethodSignOut, Authenticated, (*GRPCServer).signOut},
	{MethodSignOutEverywhere, Authenticated, (*GRPCServer).signOutEverywhere},
	{MethodGetAccount, Authenticated, (*GRPCServer).getAccount},
	{MethodSaveProgress, Authenticated, (*GRPCServer).saveProgress},
	{MethodChangePassword, Authenticated, (*GRPCServer).changePassword},
	{MethodDeleteAccount, Authenticated, (*GRPCServer).deleteAccount},
	{MethodCreateInstitution, Authenticated, (*GRPCServer).createInstitution},
	{MethodJoinInstitution, Authenticated, (*GRPCServer).joinInstitution},
	{MethodLeaveInstitution, Authenticated, (*GRPCServer).leaveInstitution},
	{MethodDeleteInstitution, Authenticated, (*GRPCServer).deleteInstitution},
	{MethodCheckIfPaidFor, Authenticated, (*GRPCServer).checkIfPaidFor},
	{MethodStartCheckout, Authenticated, (*GRPCServer).startCheckout},
}

// methodAccess maps full method paths to their access class. Paths missing
// from the map are treated as Authenticated.
var methodAccess = func() map[string]Access {
	m := make(map[string]Access, len(routes))
	for _, r := range routes {
		m[FullMethod(r.name)] = r.access
	}
	return m
}()

func (r route) desc() grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: r.name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := r.call(s, ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, s.statusError(ctx, r.name, err)
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(r.name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serviceDesc() *grpc.ServiceDesc {
	methods := make([]grpc.MethodDesc, 0, len(routes))
	for _, r := range routes {
		methods = append(methods, r.desc())
	}
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "learnkeeper/v1/learnkeeper.proto",
	}
}
