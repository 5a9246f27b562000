package config

import (
	"os"
	"testing"
	"time"
)

// setRequiredEnv выставляет минимальный набор обязательных переменных.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SB_DB_PASSWORD", "secret")
	t.Setenv("SB_BOT_TOKEN", "123:token")
	t.Setenv("SB_GROUP_CHAT_ID", "-1001234567890")
	t.Setenv("SB_ADMIN_IDS", "111,222")
}

// TestLoad_Defaults проверяет значения по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидался 8080", cfg.Port)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
	if cfg.PageSize != 10 {
		t.Errorf("PageSize = %d, ожидался 10", cfg.PageSize)
	}
	if cfg.FuzzyThreshold != 60 {
		t.Errorf("FuzzyThreshold = %d, ожидался 60", cfg.FuzzyThreshold)
	}
	if cfg.FuzzyLimit != 5 {
		t.Errorf("FuzzyLimit = %d, ожидался 5", cfg.FuzzyLimit)
	}
	if cfg.DeleteDelay != 15*time.Minute {
		t.Errorf("DeleteDelay = %v, ожидались 15m", cfg.DeleteDelay)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, ожидалась 1m", cfg.SweepInterval)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, ожидалось 8", cfg.Workers)
	}
	if cfg.APIBaseURL != "https://api.telegram.org" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
}

// TestLoad_RequiredMissing проверяет ошибку при отсутствии обязательных переменных.
func TestLoad_RequiredMissing(t *testing.T) {
	required := []string{"SB_DB_PASSWORD", "SB_BOT_TOKEN", "SB_GROUP_CHAT_ID", "SB_ADMIN_IDS"}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			os.Unsetenv(missing)

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s: ожидалась ошибка", missing)
			}
		})
	}
}

// TestLoad_AdminIDs проверяет разбор списка администраторов.
func TestLoad_AdminIDs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SB_ADMIN_IDS", " 111, 222 ,333 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if len(cfg.AdminIDs) != 3 {
		t.Fatalf("len(AdminIDs) = %d, ожидалось 3", len(cfg.AdminIDs))
	}
	if !cfg.IsAdmin(222) {
		t.Errorf("IsAdmin(222) = false, ожидалось true")
	}
	if cfg.IsAdmin(999) {
		t.Errorf("IsAdmin(999) = true, ожидалось false")
	}
}

// TestLoad_InvalidAdminIDs проверяет отказ на мусоре в списке администраторов.
func TestLoad_InvalidAdminIDs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SB_ADMIN_IDS", "111,abc")

	if _, err := Load(); err == nil {
		t.Error("Load() с некорректным SB_ADMIN_IDS: ожидалась ошибка")
	}
}

// TestLoad_InvalidLogFormat проверяет валидацию формата логов.
func TestLoad_InvalidLogFormat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SB_LOG_FORMAT", "xml")

	if _, err := Load(); err == nil {
		t.Error("Load() с SB_LOG_FORMAT=xml: ожидалась ошибка")
	}
}

// TestDatabaseDSN проверяет сборку DSN.
func TestDatabaseDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SB_DB_HOST", "db.local")
	t.Setenv("SB_DB_PORT", "5433")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	want := "host=db.local port=5433 dbname=stroomabot user=stroomabot password=secret sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q\nожидалось %q", got, want)
	}
}

// TestParseLogLevel проверяет разбор уровней логирования.
func TestParseLogLevel(t *testing.T) {
	valid := []string{"debug", "info", "WARN", "warning", "Error"}
	for _, lvl := range valid {
		if _, err := parseLogLevel(lvl); err != nil {
			t.Errorf("parseLogLevel(%q) вернул ошибку: %v", lvl, err)
		}
	}

	if _, err := parseLogLevel("trace"); err == nil {
		t.Error("parseLogLevel(trace): ожидалась ошибка")
	}
}
