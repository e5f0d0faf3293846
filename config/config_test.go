package config

import "testing"

func TestLoad_ResolvesEnvFromGetenv(t *testing.T) {
	values := map[string]string{
		"MAIL":          "/var/mail/alice",
		"MAIL_LOCATION": "maildir:~/Maildir",
		"USER":          "alice",
		"HOME":          "/home/alice",
		"MAIL_PLUGINS":  "quota",
		"DEBUG":         "1",
	}
	getenv := func(k string) string { return values[k] }

	cfg := Load(getenv)

	if cfg.Env.Mail != "/var/mail/alice" {
		t.Fatalf("Env.Mail = %q", cfg.Env.Mail)
	}
	if cfg.Env.MailLocation != "maildir:~/Maildir" {
		t.Fatalf("Env.MailLocation = %q", cfg.Env.MailLocation)
	}
	if !cfg.Env.Debug {
		t.Fatalf("Env.Debug = false, want true")
	}
	if cfg.RotateThreshold != Default().RotateThreshold {
		t.Fatalf("Load should leave non-Env fields at their Default")
	}
}

func TestLoad_DebugUnsetIsFalse(t *testing.T) {
	cfg := Load(func(string) string { return "" })
	if cfg.Env.Debug {
		t.Fatalf("Env.Debug = true with DEBUG unset")
	}
}

func TestConfig_Policy(t *testing.T) {
	if _, ok := Default().Policy().(interface{ RetryStale(func() error) error }); !ok {
		t.Fatalf("Default().Policy() does not implement Policy")
	}

	local := Default()
	nfs := local
	nfs.NFS = true

	if local.Policy() == nfs.Policy() {
		t.Fatalf("NFS and non-NFS Config should select different policies")
	}
}
