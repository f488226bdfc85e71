// Runtime file descriptor for the SpanIndex service
package server

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// FileName is the descriptor path named by ServiceDesc.Metadata.
const FileName = "spanindex/v1/spanindex.proto"

// fileDescriptor describes every method as Struct in, Struct out.
func fileDescriptor() *descriptorpb.FileDescriptorProto {
	structName := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())

	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(ServiceDesc.Methods))
	for _, m := range ServiceDesc.Methods {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(structName),
			OutputType: proto.String(structName),
		})
	}

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String("spanindex.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("SpanIndex"),
			Method: methods,
		}},
	}
}

// registerFile adds the service descriptor to files unless it is already
// there, so server reflection can resolve the service.
func registerFile(files *protoregistry.Files) (protoreflect.FileDescriptor, error) {
	if fd, err := files.FindFileByPath(FileName); err == nil {
		return fd, nil
	}
	fd, err := protodesc.NewFile(fileDescriptor(), files)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", FileName, err)
	}
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register %s: %w", FileName, err)
	}
	return fd, nil
}

func init() {
	if _, err := registerFile(protoregistry.GlobalFiles); err != nil {
		panic(err)
	}
}
