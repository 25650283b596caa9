package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.DefaultCountryCode != "1" {
		t.Errorf("DefaultCountryCode = %q, want 1", cfg.DefaultCountryCode)
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d, want 3", cfg.OTPMaxAttempts)
	}
	if cfg.QRStore != "redis" {
		t.Errorf("QRStore = %q, want redis", cfg.QRStore)
	}
	if cfg.JWTIssuer != "workforce-auth" {
		t.Errorf("JWTIssuer = %q, want workforce-auth", cfg.JWTIssuer)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.SMSLocalBaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("SMSLocalBaseURL = %q, want default", cfg.SMSLocalBaseURL)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.OTPLifetime() != 5*time.Minute {
		t.Errorf("OTPLifetime = %v, want 5m", cfg.OTPLifetime())
	}
	if cfg.QRLifetime() != 5*time.Minute {
		t.Errorf("QRLifetime = %v, want 5m", cfg.QRLifetime())
	}
	if cfg.MagicLinkLifetime() != time.Hour {
		t.Errorf("MagicLinkLifetime = %v, want 1h", cfg.MagicLinkLifetime())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("DEFAULT_COUNTRY_CODE", "44")
	os.Setenv("OTP_MAX_ATTEMPTS", "5")
	os.Setenv("QR_STORE", "postgres")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.DefaultCountryCode != "44" {
		t.Errorf("DefaultCountryCode = %q, want 44", cfg.DefaultCountryCode)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.QRStore != "postgres" {
		t.Errorf("QRStore = %q, want postgres", cfg.QRStore)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_InvalidQRStore(t *testing.T) {
	os.Clearenv()
	os.Setenv("QR_STORE", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject unknown QR_STORE")
	}
}

func TestLoad_InvalidMaxAttempts(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_MAX_ATTEMPTS", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject OTP_MAX_ATTEMPTS < 1")
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
}

func TestDurations_InvalidFallBackToDefault(t *testing.T) {
	cfg := &Config{OTPTTL: "soon", QRTTL: "-1m", MagicLinkTTL: "", SendRateInterval: "0s", SessionLifetime: "x"}
	if got := cfg.OTPLifetime(); got != 5*time.Minute {
		t.Errorf("OTPLifetime = %v, want 5m", got)
	}
	if got := cfg.QRLifetime(); got != 5*time.Minute {
		t.Errorf("QRLifetime = %v, want 5m", got)
	}
	if got := cfg.MagicLinkLifetime(); got != time.Hour {
		t.Errorf("MagicLinkLifetime = %v, want 1h", got)
	}
	if got := cfg.SendInterval(); got != 30*time.Second {
		t.Errorf("SendInterval = %v, want 30s", got)
	}
	if got := cfg.SessionTTL(); got != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", got)
	}
}

func TestDurations_Valid(t *testing.T) {
	cfg := &Config{OTPTTL: "2m", QRTTL: "90s", MagicLinkTTL: "30m"}
	if got := cfg.OTPLifetime(); got != 2*time.Minute {
		t.Errorf("OTPLifetime = %v, want 2m", got)
	}
	if got := cfg.QRLifetime(); got != 90*time.Second {
		t.Errorf("QRLifetime = %v, want 90s", got)
	}
	if got := cfg.MagicLinkLifetime(); got != 30*time.Minute {
		t.Errorf("MagicLinkLifetime = %v, want 30m", got)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	want := []string{"a:9092", "b:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KafkaBrokersList = %v, want %v", got, want)
	}
	if (&Config{}).KafkaBrokersList() != nil {
		t.Error("empty KAFKA_BROKERS should yield nil")
	}
}

func TestIsProduction(t *testing.T) {
	if !(&Config{Env: "Production"}).IsProduction() {
		t.Error("Production should be production")
	}
	if (&Config{Env: "development"}).IsProduction() {
		t.Error("development should not be production")
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{PublicBaseURL: "https://auth.acme.test/app/", CORSAllowedOrigins: "https://expenses.acme.test/, ,http://localhost:3000"}
	want := []string{"https://auth.acme.test", "https://expenses.acme.test", "http://localhost:3000"}
	if got := cfg.AllowedOrigins(); !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedOrigins = %v, want %v", got, want)
	}
	if got := (&Config{}).AllowedOrigins(); len(got) != 0 {
		t.Errorf("empty config: %v", got)
	}
}
