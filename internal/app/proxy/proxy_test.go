package proxy

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/payment-service/internal/config"
)

func TestNew_Servers(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		proxy     config.Proxy
		wantAddrs []string
		wantTLS   []bool
	}{
		{
			name:      "без сертификата только HTTP",
			proxy:     config.Proxy{HTTPAddress: ":8080", HTTPSAddress: ":8443", Upstream: "http://api:8000"},
			wantAddrs: []string{":8080"},
			wantTLS:   []bool{false},
		},
		{
			name: "с сертификатом HTTPS и редирект",
			proxy: config.Proxy{
				HTTPAddress: ":8080", HTTPSAddress: ":8443", Upstream: "http://api:8000",
				TLSCertFile: "cert.pem", TLSKeyFile: "key.pem",
			},
			wantAddrs: []string{":8443", ":8080"},
			wantTLS:   []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := New(context.Background(), &config.Config{Proxy: tt.proxy}, log)
			require.NoError(t, err)
			require.Len(t, app.servers, len(tt.wantAddrs))
			for i, srv := range app.servers {
				assert.Equal(t, tt.wantAddrs[i], srv.Addr)
				assert.Equal(t, tt.wantTLS[i], srv.TLSConfig != nil)
				if srv.TLSConfig != nil {
					assert.Equal(t, uint16(tls.VersionTLS12), srv.TLSConfig.MinVersion)
				}
			}
		})
	}
}

func TestNew_BadUpstream(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(context.Background(), &config.Config{Proxy: config.Proxy{Upstream: "::bad"}}, log)
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := New(context.Background(), &config.Config{Proxy: config.Proxy{
		HTTPAddress: "127.0.0.1:0", Upstream: "http://127.0.0.1:1",
	}}, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
}
