package tunnelmodel

import "testing"

func baseConfig() TunnelConfig {
	return TunnelConfig{
		ID:               "t1",
		LocalAddr:        "127.0.0.1",
		LocalPort:        8080,
		RemoteBindAddr:   "127.0.0.1",
		RemotePort:       9090,
		SSHHost:          "example.com",
		SSHPort:          22,
		Username:         "deploy",
		Auth:             Auth{Kind: AuthPassword, Secret: "hunter2"},
		Enabled:          true,
		ConnectTimeoutMs: 5000,
		ReconnectBackoff: DefaultBackoff(),
	}
}

func TestTunnelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c TunnelConfig) TunnelConfig
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c TunnelConfig) TunnelConfig { return c },
		},
		{
			name:    "zero remote port",
			mutate:  func(c TunnelConfig) TunnelConfig { c.RemotePort = 0; return c },
			wantErr: CodeConfigInvalid,
		},
		{
			name: "public bind without allow",
			mutate: func(c TunnelConfig) TunnelConfig {
				c.RemoteBindAddr = "0.0.0.0"
				c.AllowPublicBind = false
				return c
			},
			wantErr: CodePublicBindNotAllowed,
		},
		{
			name: "public bind with allow",
			mutate: func(c TunnelConfig) TunnelConfig {
				c.RemoteBindAddr = "0.0.0.0"
				c.AllowPublicBind = true
				return c
			},
		},
		{
			name: "strict checking without fingerprint",
			mutate: func(c TunnelConfig) TunnelConfig {
				c.StrictHostKeyChecking = true
				return c
			},
			wantErr: CodeHostkeyMissing,
		},
		{
			name: "strict checking with fingerprint",
			mutate: func(c TunnelConfig) TunnelConfig {
				c.StrictHostKeyChecking = true
				c.HostKeyFingerprint = "SHA256:abc"
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(baseConfig()).Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			tErr, ok := err.(*TunnelError)
			if !ok {
				t.Fatalf("expected *TunnelError, got %T (%v)", err, err)
			}
			if tErr.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, tErr.Code)
			}
		})
	}
}

func TestTunnelConfigEqual(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	if !a.Equal(b) {
		t.Error("identical configs should be Equal")
	}
	b.LocalPort = 9999
	if a.Equal(b) {
		t.Error("configs differing in LocalPort should not be Equal")
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	if b.BaseMs != 500 || b.MaxMs != 30_000 {
		t.Errorf("unexpected default backoff: %+v", b)
	}
}

func TestRuntimeStatusClone(t *testing.T) {
	s := RuntimeStatus{State: StateForwarding, LastError: &LastError{Code: "X", Message: "y"}}
	cp := s.Clone()
	cp.LastError.Code = "changed"
	if s.LastError.Code == "changed" {
		t.Error("Clone should deep-copy LastError")
	}
}
