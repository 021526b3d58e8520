package config

import "testing"

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", AdminID: 900},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("expected longpoll default, got %q", cfg.Telegram.RunMode)
	}
	if cfg.Marketplace.TrialDays != 3 || cfg.Marketplace.ExtensionDays != 30 {
		t.Fatalf("unexpected marketplace defaults: %+v", cfg.Marketplace)
	}
	if cfg.Marketplace.RetentionDays != 30 || cfg.Marketplace.ArtifactDir != "uploads" {
		t.Fatalf("unexpected marketplace defaults: %+v", cfg.Marketplace)
	}
}

func TestNormalizeRequiresTokenAndAdmin(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing token")
	}

	cfg = validConfig()
	cfg.Telegram.AdminID = 0
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing admin_id")
	}
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("expected polling alias to map to longpoll, got %q", cfg.Telegram.RunMode)
	}
}

func TestNormalizeWebhookRequiresEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for webhook mode without url/listen/port")
	}

	cfg = validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	cfg.Webhook = WebhookConfig{URL: "https://example.com/hook", Listen: "0.0.0.0", Port: 8443}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
}

func TestNormalizeRejectsUnknownExcludeUpdates(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{"callback", "inline_query"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unsupported exclude kind")
	}
}
