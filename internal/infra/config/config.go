// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (движок репликации сообщений между Telegram-чатами). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. предоставляет потокобезопасный доступ к результату через singleton.
//
// Бизнес-контекст: движок слушает исходные чаты через пользовательскую MTProto-сессию
// и реплицирует сообщения через пул ботов Bot API. Конфиг управляет подключением к
// обеим сторонам, размером очереди и числом воркеров, лимитами скорости на бота,
// периодом проверки здоровья и списком администраторов панели управления.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env).
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
// В рантайме по месту использования предполагается, что EnvConfig последователен.
type EnvConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionFile string
	StateFile   string
	TestDC      bool

	LogLevel string

	BotTokens []string // index in this slice is the bot index used throughout the system

	MaxWorkers          int
	MessageQueueSize    int
	RateLimitMessages   int
	RateLimitWindowSec  int
	HealthCheckInterval int // seconds

	DedupWindowSec int
	DebounceEditMS int

	AdminUserIDs []int64

	DBPath string
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: публичные геттеры берут RLock.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultLogLevel            = "info"
	defaultSessionFile         = "data/session.bin"
	defaultStateFile           = "data/state.json"
	defaultMaxWorkers          = 8
	defaultMessageQueueSize    = 1000
	defaultRateLimitMessages   = 20
	defaultRateLimitWindowSec  = 60
	defaultHealthCheckInterval = 60
	defaultDBPath              = "data/tgrelay.bbolt"
	defaultDedupWindowSec      = 5
	defaultDebounceEditMS      = 800
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации всего приложения.
// Повторный вызов запрещен (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	cfgInstance = newCfg
	cfgDone = true
	return err
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	apiID, err := parseRequiredInt("API_ID")
	if err != nil {
		return nil, err
	}

	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env API_HASH must be set")
	}

	phone := strings.TrimSpace(os.Getenv("PHONE_NUMBER"))
	if phone == "" {
		return nil, errors.New("env PHONE_NUMBER must be set")
	}

	botTokens := parseBotTokens(os.Getenv("BOT_TOKENS"))
	if len(botTokens) == 0 {
		return nil, errors.New("env BOT_TOKENS must contain at least one token")
	}

	var warnings []string

	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings)
	sessionFile := sanitizeFile("SESSION_FILE", os.Getenv("SESSION_FILE"), defaultSessionFile, &warnings)
	stateFile := sanitizeFile("STATE_FILE", os.Getenv("STATE_FILE"), defaultStateFile, &warnings)
	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")
	dbPath := sanitizeFile("DB_PATH", os.Getenv("DB_PATH"), defaultDBPath, &warnings)

	maxWorkers := parseIntDefault("MAX_WORKERS", defaultMaxWorkers, greaterThanZero, &warnings)
	queueSize := parseIntDefault("MESSAGE_QUEUE_SIZE", defaultMessageQueueSize, greaterThanZero, &warnings)
	rateLimitMessages := parseIntDefault("RATE_LIMIT_MESSAGES", defaultRateLimitMessages, greaterThanZero, &warnings)
	rateLimitWindow := parseIntDefault("RATE_LIMIT_WINDOW", defaultRateLimitWindowSec, greaterThanZero, &warnings)
	healthInterval := parseIntDefault("HEALTH_CHECK_INTERVAL", defaultHealthCheckInterval, greaterThanZero, &warnings)
	dedupWindow := parseIntDefault("DEDUP_WINDOW_SEC", defaultDedupWindowSec, greaterThanZero, &warnings)
	debounceEditMS := parseIntDefault("DEBOUNCE_EDIT_MS", defaultDebounceEditMS, greaterThanZero, &warnings)

	adminIDs := parseAdminIDs(os.Getenv("ADMIN_USER_IDS"), &warnings)

	env := EnvConfig{
		APIID:               apiID,
		APIHash:             apiHash,
		PhoneNumber:         phone,
		SessionFile:         sessionFile,
		StateFile:           stateFile,
		TestDC:              testDC,
		LogLevel:            logLevel,
		BotTokens:           botTokens,
		MaxWorkers:          maxWorkers,
		MessageQueueSize:    queueSize,
		RateLimitMessages:   rateLimitMessages,
		RateLimitWindowSec:  rateLimitWindow,
		HealthCheckInterval: healthInterval,
		DedupWindowSec:      dedupWindow,
		DebounceEditMS:      debounceEditMS,
		AdminUserIDs:        adminIDs,
		DBPath:              dbPath,
	}

	cfg := &Config{
		Env:      env,
		warnings: warnings,
	}

	return cfg, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент последней загрузки; для обновления надо перечитать конфиг целиком.
func Env() EnvConfig {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.Env
}

// parseRequiredInt читает обязательную целочисленную переменную окружения name.
func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о некорректных
// переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }

// sanitizeLogLevel нормализует LOG_LEVEL и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultLogLevel.
func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultLogLevel)
		return defaultLogLevel
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

// sanitizeFile возвращает валидное имя файла конфигурации. Если переменная не
// задана, подставляет fallback и пишет предупреждение.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// parseBotTokens разбирает BOT_TOKENS как CSV-список, сохраняя порядок: индекс
// токена в этом списке становится идентификатором бота (bot index) во всей системе.
func parseBotTokens(value string) []string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

var adminIDPattern = regexp.MustCompile(`^-?\d+$`)

// parseAdminIDs разбирает ADMIN_USER_IDS как CSV-список telegram-идентификаторов.
// Некорректные записи отбрасываются с предупреждением; пустой список означает
// "панель управления открыта для всех" (см. ControlPlane).
func parseAdminIDs(value string, warnings *[]string) []int64 {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if !adminIDPattern.MatchString(token) {
			appendWarningf(warnings, "env ADMIN_USER_IDS entry %q is not a valid integer id; skipping", token)
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			appendWarningf(warnings, "env ADMIN_USER_IDS entry %q is not a valid integer id; skipping", token)
			continue
		}
		out = append(out, id)
	}
	return out
}
