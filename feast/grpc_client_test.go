package feast

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
)

func TestSDKValueConversion(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"42@peertube.example", "42@peertube.example"},
		{int64(7), int64(7)},
		{7, int64(7)},
		{int32(3), int64(3)},
		{2.5, 2.5},
		{true, true},
	}
	for _, tt := range tests {
		if got := fromSDKValue(toSDKValue(tt.in)); got != tt.want {
			t.Errorf("round trip %v (%T) = %v (%T)", tt.in, tt.in, got, got)
		}
	}
	if fromSDKValue(nil) != nil {
		t.Error("nil value")
	}
}

func TestGrpcClientValidation(t *testing.T) {
	c := &GrpcClient{}
	ctx := context.Background()
	if _, err := c.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{}); err == nil {
		t.Fatal("features are required")
	}
	resp, err := c.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{Features: []string{"f"}})
	if err != nil || len(resp.FeatureVectors) != 0 {
		t.Fatalf("no entities: %v %v", resp, err)
	}
	_, err = c.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{Features: []string{"f"}, EntityRows: []map[string]any{{"k": "v"}}})
	if err == nil {
		t.Fatal("project is required")
	}
}

// 需要真实的 Feast 服务：VIDREC_TEST_FEAST_ADDR=host:port
func TestGrpcClientOnline(t *testing.T) {
	addr := os.Getenv("VIDREC_TEST_FEAST_ADDR")
	if addr == "" {
		t.Skip("VIDREC_TEST_FEAST_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad addr %q", addr)
	}
	c, err := NewGrpcClient(host, port, "vidrec")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.GetOnlineFeatures(context.Background(), &GetOnlineFeaturesRequest{
		Features:   []string{"video_engagement:views"},
		EntityRows: []map[string]any{{"video_key": "1@peertube.example"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.FeatureVectors) != 1 {
		t.Fatalf("vectors = %d", len(resp.FeatureVectors))
	}
}
