package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOSRMProviderFetchRoute(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr string
	}{
		{
			name:    "ok",
			status:  http.StatusOK,
			body:    `{"code":"Ok","routes":[{"duration":120.5,"distance":900,"geometry":{"coordinates":[[106.9170,47.9186],[106.9200,47.9170],[106.9250,47.9150]]}}]}`,
			wantLen: 3,
		},
		{
			name:    "no route",
			status:  http.StatusBadRequest,
			body:    `{"code":"NoRoute","message":"Impossible route","routes":[]}`,
			wantErr: "NoRoute",
		},
		{
			name:    "garbage",
			status:  http.StatusBadGateway,
			body:    `<html>`,
			wantErr: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOSRMProvider(srv.URL + "/")
			path, err := p.FetchRoute(context.Background(), pickup, dropoff)
			if gotPath != "/route/v1/driving/106.917000,47.918600;106.925000,47.915000" {
				t.Fatalf("unexpected path %q", gotPath)
			}
			if !strings.Contains(gotQuery, "geometries=geojson") {
				t.Fatalf("expected geojson geometry, query=%q", gotQuery)
			}
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if len(path) != tt.wantLen {
				t.Fatalf("expected %d points, got %d", tt.wantLen, len(path))
			}
			if path[0].Lat != 47.9186 || path[0].Lon != 106.9170 {
				t.Fatalf("lon/lat order not swapped: %v", path[0])
			}
		})
	}
}

func TestOSRMProviderEstimateSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "overview=false") {
			t.Errorf("expected overview=false, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"duration":95.25,"distance":700}]}`))
	}))
	defer srv.Close()

	got, err := NewOSRMProvider(srv.URL).EstimateSeconds(context.Background(), pickup, dropoff)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != 95.25 {
		t.Fatalf("expected 95.25, got %f", got)
	}
}
