// Integration tests for the span index gRPC server
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/spanindex/internal/config"
	"github.com/nainya/spanindex/internal/logger"
	"github.com/nainya/spanindex/internal/metrics"
	"github.com/nainya/spanindex/pkg/tagger"
)

const bufSize = 1024 * 1024

const testText = "package a\n// TODO(ann) first\nfunc a() {}\n// TODO(bob) second\n"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Query.Verify = true
	cfg.Rules = []tagger.Rule{
		{Name: "todo", Kind: "comment", Pattern: `TODO\(\w+\)`},
		{Name: "func", Kind: "decl", Pattern: `func (\w+)`, Group: 1, Paths: []string{"**/*.go"}},
	}
	return cfg
}

func setupTestServer(t *testing.T) (*Server, *Client, *metrics.Metrics, func()) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	log := logger.Nop()

	server, err := NewServer(testConfig(), m, log)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	lis := bufconn.Listen(bufSize)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, log)))
	RegisterSpanIndexServer(grpcServer, server)

	go func() {
		// Serve returns once the server is stopped during cleanup
		_ = grpcServer.Serve(lis)
	}()

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}

	ctx := context.Background()
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	cleanup := func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
	}

	return server, NewClient(conn), m, cleanup
}

func openTestDocument(t *testing.T, client *Client) *structpb.Struct {
	t.Helper()
	resp, err := client.Call(context.Background(), OpenDocumentMethod, map[string]interface{}{
		"document_id": "doc-1",
		"path":        "pkg/a.go",
		"text":        testText,
	})
	if err != nil {
		t.Fatalf("OpenDocument failed: %v", err)
	}
	return resp
}

func num(s *structpb.Struct, field string) int {
	return int(s.GetFields()[field].GetNumberValue())
}

type span struct {
	start, length int
	rule          string
}

func spans(t *testing.T, resp *structpb.Struct) []span {
	t.Helper()
	var out []span
	for _, v := range resp.GetFields()["spans"].GetListValue().GetValues() {
		s := v.GetStructValue()
		out = append(out, span{
			start:  num(s, "start"),
			length: num(s, "length"),
			rule:   s.GetFields()["rule"].GetStringValue(),
		})
	}
	return out
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Errorf("Expected code %v, got %v (%v)", want, got, err)
	}
}

func TestOpenDocumentTagsText(t *testing.T) {
	_, client, m, cleanup := setupTestServer(t)
	defer cleanup()

	resp := openTestDocument(t, client)
	if num(resp, "version") != 1 {
		t.Errorf("Expected version 1, got %d", num(resp, "version"))
	}
	if num(resp, "spans") != 3 {
		t.Errorf("Expected 3 spans, got %d", num(resp, "spans"))
	}
	if resp.GetFields()["generation"].GetStringValue() == "" {
		t.Error("Expected a generation ID")
	}

	if got := testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues(OpenDocumentMethod, "OK")); got != 1 {
		t.Errorf("Expected 1 recorded OpenDocument request, got %v", got)
	}
	if got := testutil.ToFloat64(m.DocumentsOpen); got != 1 {
		t.Errorf("Expected 1 open document, got %v", got)
	}
}

func TestIntersectingAndContains(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	resp, err := client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"start":       0,
		"length":      30,
	})
	if err != nil {
		t.Fatalf("Intersecting failed: %v", err)
	}
	got := spans(t, resp)
	if len(got) != 1 || got[0] != (span{13, 9, "todo"}) {
		t.Errorf("Expected the first TODO only, got %+v", got)
	}

	for point, want := range map[int]bool{0: false, 13: true, 21: true, 22: false, 34: true} {
		resp, err := client.Call(ctx, ContainsMethod, map[string]interface{}{
			"document_id": "doc-1",
			"point":       point,
		})
		if err != nil {
			t.Fatalf("Contains failed: %v", err)
		}
		if found := resp.GetFields()["contains"].GetBoolValue(); found != want {
			t.Errorf("Contains(%d) = %v, expected %v", point, found, want)
		}
	}
}

func TestEditRetagsTouchedLines(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	resp, err := client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
		"edits": []interface{}{
			map[string]interface{}{"start": 0, "text": "// TODO(cat)\n"},
		},
	})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if num(resp, "version") != 2 || num(resp, "carried") != 3 || num(resp, "fresh") != 1 {
		t.Errorf("Unexpected generation: %v", resp)
	}

	resp, err = client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"start":       0,
		"length":      40,
	})
	if err != nil {
		t.Fatalf("Intersecting failed: %v", err)
	}
	want := []span{{3, 9, "todo"}, {26, 9, "todo"}}
	got := spans(t, resp)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	// The generation is anchored at version 2 and cannot answer for 1.
	_, err = client.Call(ctx, ContainsMethod, map[string]interface{}{
		"document_id": "doc-1",
		"point":       3,
		"version":     1,
	})
	expectCode(t, err, codes.FailedPrecondition)
}

func TestEditAfterFailedRebuildCatchesUp(t *testing.T) {
	server, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	openTestDocument(t, client)

	req, err := structpb.NewStruct(map[string]interface{}{
		"document_id": "doc-1",
		"edits": []interface{}{
			map[string]interface{}{"start": 0, "text": "// TODO(zed)\n"},
			map[string]interface{}{"start": len(testText), "text": "z\n"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	// The edit lands but the rebuild sees the cancelled context.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = server.Edit(cancelled, req)
	expectCode(t, err, codes.Canceled)

	ctx := context.Background()
	resp, err := client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
		"edits": []interface{}{
			map[string]interface{}{"start": len(testText) + 15, "text": "x"},
		},
	})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if num(resp, "version") != 3 {
		t.Errorf("Expected version 3, got %d", num(resp, "version"))
	}

	resp, err = client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"start":       0,
		"length":      13,
	})
	if err != nil {
		t.Fatalf("Intersecting failed: %v", err)
	}
	got := spans(t, resp)
	if len(got) != 1 || got[0] != (span{3, 9, "todo"}) {
		t.Errorf("Expected TODO(zed) to be tagged, got %+v", got)
	}
}

func TestServiceDescriptorRegistered(t *testing.T) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	if err != nil {
		t.Fatalf("Service %s not registered: %v", ServiceName, err)
	}
	sd, ok := d.(protoreflect.ServiceDescriptor)
	if !ok {
		t.Fatalf("Expected a service descriptor, got %T", d)
	}
	if sd.ParentFile().Path() != ServiceDesc.Metadata {
		t.Errorf("Expected file %v, got %s", ServiceDesc.Metadata, sd.ParentFile().Path())
	}
	if sd.Methods().Len() != len(ServiceDesc.Methods) {
		t.Fatalf("Expected %d methods, got %d", len(ServiceDesc.Methods), sd.Methods().Len())
	}
	for _, m := range ServiceDesc.Methods {
		md := sd.Methods().ByName(protoreflect.Name(m.MethodName))
		if md == nil {
			t.Errorf("Method %s missing from descriptor", m.MethodName)
			continue
		}
		if md.Input().FullName() != "google.protobuf.Struct" {
			t.Errorf("Method %s takes %s", m.MethodName, md.Input().FullName())
		}
	}

	// Registering again is a no-op.
	if _, err := registerFile(protoregistry.GlobalFiles); err != nil {
		t.Errorf("Second registration failed: %v", err)
	}
}

func TestApplyDiffRetags(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	patch := "--- a/pkg/a.go\n+++ b/pkg/a.go\n@@ -3,1 +3,1 @@\n-func a() {}\n+func bee() {}\n"
	resp, err := client.Call(ctx, ApplyDiffMethod, map[string]interface{}{
		"document_id": "doc-1",
		"patch":       patch,
	})
	if err != nil {
		t.Fatalf("ApplyDiff failed: %v", err)
	}
	if num(resp, "spans") != 3 {
		t.Errorf("Expected 3 spans after the rename, got %d", num(resp, "spans"))
	}

	resp, err = client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"start":       29,
		"length":      12,
	})
	if err != nil {
		t.Fatalf("Intersecting failed: %v", err)
	}
	got := spans(t, resp)
	if len(got) != 1 || got[0] != (span{34, 3, "func"}) {
		t.Errorf("Expected the renamed function, got %+v", got)
	}

	_, err = client.Call(ctx, ApplyDiffMethod, map[string]interface{}{
		"document_id": "doc-1",
		"patch":       patch,
	})
	expectCode(t, err, codes.InvalidArgument)
}

func TestBatchIntersectingStrategies(t *testing.T) {
	_, client, m, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	resp, err := client.Call(ctx, BatchIntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"ranges": []interface{}{
			map[string]interface{}{"start": 33, "length": 2},
			map[string]interface{}{"start": 0, "length": 15},
		},
	})
	if err != nil {
		t.Fatalf("BatchIntersecting failed: %v", err)
	}
	if s := resp.GetFields()["strategy"].GetStringValue(); s != "loop" {
		t.Errorf("Expected loop strategy, got %s", s)
	}
	if got := spans(t, resp); len(got) != 2 {
		t.Errorf("Expected 2 spans, got %+v", got)
	}

	ranges := make([]interface{}, 0, 150)
	for i := 0; i < 150; i++ {
		ranges = append(ranges, map[string]interface{}{"start": i, "length": 1})
	}
	resp, err = client.Call(ctx, BatchIntersectingMethod, map[string]interface{}{
		"document_id": "doc-1",
		"ranges":      ranges,
	})
	if err != nil {
		t.Fatalf("BatchIntersecting failed: %v", err)
	}
	if s := resp.GetFields()["strategy"].GetStringValue(); s != "sweep" {
		t.Errorf("Expected sweep strategy, got %s", s)
	}
	if got := spans(t, resp); len(got) != 3 {
		t.Errorf("Expected every span once, got %+v", got)
	}

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("sweep")); got != 1 {
		t.Errorf("Expected 1 sweep query, got %v", got)
	}
}

func TestErrorCodes(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	_, err := client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "missing", "start": 0, "length": 1,
	})
	expectCode(t, err, codes.NotFound)

	_, err = client.Call(ctx, OpenDocumentMethod, map[string]interface{}{
		"document_id": "doc-1", "text": "",
	})
	expectCode(t, err, codes.AlreadyExists)

	_, err = client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
	})
	expectCode(t, err, codes.InvalidArgument)

	_, err = client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
		"edits": []interface{}{
			map[string]interface{}{"start": 1000, "text": "x"},
		},
	})
	expectCode(t, err, codes.InvalidArgument)

	_, err = client.Call(ctx, IntersectingMethod, map[string]interface{}{
		"document_id": "doc-1", "start": -1, "length": 1,
	})
	expectCode(t, err, codes.InvalidArgument)

	_, err = client.Call(ctx, ContainsMethod, map[string]interface{}{
		"document_id": "doc-1", "point": 1, "version": 99,
	})
	expectCode(t, err, codes.InvalidArgument)
}

func TestReleaseKeepsGenerationHistory(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	for i := 0; i < 2; i++ {
		if _, err := client.Call(ctx, EditMethod, map[string]interface{}{
			"document_id": "doc-1",
			"edits":       []interface{}{map[string]interface{}{"start": 0, "text": "\n"}},
		}); err != nil {
			t.Fatalf("Edit failed: %v", err)
		}
	}

	resp, err := client.Call(ctx, ReleaseMethod, map[string]interface{}{
		"document_id": "doc-1",
		"before":      10,
	})
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if num(resp, "released_before") != 3 {
		t.Errorf("Expected release clamped to the generation anchor 3, got %d", num(resp, "released_before"))
	}

	// A further edit still rebuilds from the current generation.
	if _, err := client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
		"edits":       []interface{}{map[string]interface{}{"start": 0, "text": "\n"}},
	}); err != nil {
		t.Fatalf("Edit after release failed: %v", err)
	}
}

func TestReleaseKeepsAcquiredGeneration(t *testing.T) {
	server, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	// A reader holds the version 1 generation across an edit.
	server.mu.RLock()
	e := server.entries["doc-1"]
	server.mu.RUnlock()
	gen, done := e.index.Acquire()

	if _, err := client.Call(ctx, EditMethod, map[string]interface{}{
		"document_id": "doc-1",
		"edits":       []interface{}{map[string]interface{}{"start": 0, "text": "\n"}},
	}); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	release := func() int {
		resp, err := client.Call(ctx, ReleaseMethod, map[string]interface{}{
			"document_id": "doc-1",
			"before":      10,
		})
		if err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		return num(resp, "released_before")
	}

	if got := release(); got != 1 {
		t.Errorf("Expected release held at the acquired anchor 1, got %d", got)
	}
	if _, err := gen.Tree.HasSpanThatContains(e.doc.Current(), 4); err != nil {
		t.Errorf("The acquired generation should still translate: %v", err)
	}

	done()
	if got := release(); got != 2 {
		t.Errorf("Expected release up to the current anchor 2, got %d", got)
	}
}

func TestRetagAndStats(t *testing.T) {
	_, client, _, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()
	openTestDocument(t, client)

	resp, err := client.Call(ctx, RetagMethod, map[string]interface{}{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("Retag failed: %v", err)
	}
	if num(resp, "fresh") != 3 || num(resp, "carried") != 0 {
		t.Errorf("Expected a full retag, got %v", resp)
	}

	resp, err = client.Call(ctx, StatsMethod, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if num(resp, "documents") != 1 || num(resp, "rules") != 2 {
		t.Errorf("Unexpected stats: %v", resp)
	}
	ops := resp.GetFields()["operations"].GetStructValue()
	if num(ops, "Retag") != 1 {
		t.Errorf("Expected one Retag operation, got %v", ops)
	}

	resp, err = client.Call(ctx, StatsMethod, map[string]interface{}{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	doc := resp.GetFields()["document"].GetStructValue()
	if num(doc, "spans") != 3 || num(doc, "current_version") != 1 {
		t.Errorf("Unexpected document stats: %v", doc)
	}

	if _, err := client.Call(ctx, CloseDocumentMethod, map[string]interface{}{"document_id": "doc-1"}); err != nil {
		t.Fatalf("CloseDocument failed: %v", err)
	}
	_, err = client.Call(ctx, StatsMethod, map[string]interface{}{"document_id": "doc-1"})
	expectCode(t, err, codes.NotFound)
}

func TestObservabilityEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordGrpcRequest(StatsMethod, "OK", 0)

	var ready atomic.Bool
	srv := httptest.NewServer(observabilityMux(reg, ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/health"); code != http.StatusOK {
		t.Errorf("Expected healthy, got %d", code)
	}
	if code, _ := get("/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("Expected not ready, got %d", code)
	}
	ready.Store(true)
	if code, _ := get("/ready"); code != http.StatusOK {
		t.Errorf("Expected ready, got %d", code)
	}
	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "spanindex_grpc_requests_total") {
		t.Errorf("Expected gRPC metrics in /metrics, got %d", code)
	}
}
