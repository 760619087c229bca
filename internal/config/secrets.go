package config

const redacted = "***"

// redact replaces a non-empty string with the placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactedList returns a same-length slice of placeholders.
func redactedList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i := range out {
		out[i] = redacted
	}
	return out
}

// cloneStrings copies a slice so the redacted copy shares nothing mutable
// with the original.
func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// RedactedConfig returns a copy of cfg safe to log: every credential field
// is replaced with "***" and shared slices are detached.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Identity.PrivateKey)
	redact(&out.Identity.KeyPassword)

	redact(&out.Auth.SessionSecret)
	out.Auth.APIKeys = redactedList(cfg.Auth.APIKeys)

	// The Postgres DSN may embed a password.
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	if cfg.Collateral.Assets != nil {
		out.Collateral.Assets = append([]CollateralAssetConfig(nil), cfg.Collateral.Assets...)
	}

	return out
}
