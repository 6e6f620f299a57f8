package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("SESSION_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if !cfg.Auth.EnforceCSRF {
		t.Error("EnforceCSRF should default to true")
	}
	if cfg.Auth.SessionExpiry != 30*24*time.Hour {
		t.Errorf("SessionExpiry: got %v, want %v", cfg.Auth.SessionExpiry, 30*24*time.Hour)
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Errorf("QueryTimeout: got %v, want %v", cfg.Database.QueryTimeout, 5*time.Second)
	}
	if cfg.Server.IsProduction() {
		t.Error("expected development mode by default")
	}
}

func TestLoad_CSRFEnforcementDisabled(t *testing.T) {
	os.Setenv("SESSION_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENFORCE_CSRF", "false")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.EnforceCSRF {
		t.Error("EnforceCSRF should be disabled by ENFORCE_CSRF=false")
	}
}

func TestLoad_MissingSessionSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without SESSION_SECRET")
	}
}

func TestLoad_WeakSessionSecret(t *testing.T) {
	os.Setenv("SESSION_SECRET", "short")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a short session secret")
	}
}

func TestLoad_ProductionRequiresStrongSecret(t *testing.T) {
	os.Setenv("SESSION_SECRET", "only-twenty-chars!!!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a <32 char secret in production")
	}
}

func TestLoad_AlertsRequireAdminEmail(t *testing.T) {
	os.Setenv("SESSION_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SECURITY_ALERTS_ENABLED", "true")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should require ADMIN_ALERT_EMAIL when alerts are enabled")
	}
}
