// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (HTTP-шлюз поверх MTProto-клиентов). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. накапливает предупреждения о подставленных дефолтах,
//  4. фиксирует результат в singleton и отдаёт его через Env().
//
// Бизнес-контекст: конфиг среды управляет адресом HTTP-сервера, каталогом
// загрузок, логированием, лимитами скорости для MTProto-клиентов и опциональным
// предустановленным набором учётных данных Telegram API. Учётные данные можно
// также выставить в рантайме через /set_api_credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env). Это «операционные»
// настройки запуска: адрес сервера, каталоги, лог-уровни, лимиты и флаги.
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
// В рантайме по месту использования предполагается, что EnvConfig последователен.
type EnvConfig struct {
	ServerAddress   string
	UploadDir       string
	UploadIndexFile string
	LogLevel        string
	// Предустановленные учётные данные Telegram API (опционально; обычно
	// выставляются через /set_api_credentials).
	APIID   int
	APIHash string
	// Параметры MTProto-клиентов.
	TestDC      bool
	ThrottleRPS int
	PingReply   bool
	// Защита HTTP-API статическим bearer-токеном (пусто = выключено).
	AuthToken string
	// Файловое логирование.
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: публичные геттеры берут RLock; после Load() конфигурация
// не меняется.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultServerAddress   = "0.0.0.0:8000"
	defaultUploadDir       = "uploads"
	defaultUploadIndexFile = "data/uploads.bbolt"
	defaultLogLevel        = "info"
	defaultThrottleRPS     = 10
	defaultPingReply       = true
	// Файловое логирование (LOG_FILE не имеет дефолта - должен быть явно указан для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации всего приложения.
// При первом вызове читает .env (отсутствие файла не фатально: шлюз умеет работать
// на дефолтах, а учётные данные приходят через API), формирует EnvConfig и
// фиксирует результат в singleton. Повторный вызов запрещён, чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	var warnings []string

	if err := godotenv.Load(envPath); err != nil {
		appendWarningf(&warnings, "env file %q is not readable (%v); using process environment only", envPath, err)
	}

	serverAddress := sanitizeValue("SERVER_ADDRESS", os.Getenv("SERVER_ADDRESS"), defaultServerAddress, &warnings)
	uploadDir := sanitizeValue("UPLOAD_DIR", os.Getenv("UPLOAD_DIR"), defaultUploadDir, &warnings)
	uploadIndexFile := sanitizeValue("UPLOAD_INDEX_FILE", os.Getenv("UPLOAD_INDEX_FILE"),
		defaultUploadIndexFile, &warnings)
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")
	pingReply := parseBoolDefault("PING_REPLY", defaultPingReply, &warnings)
	authToken := strings.TrimSpace(os.Getenv("AUTH_TOKEN"))

	// Учётные данные API опциональны: если заданы, шлюз стартует уже сконфигурированным.
	apiID := parseOptionalInt("API_ID", &warnings)
	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if (apiID == 0) != (apiHash == "") {
		appendWarningf(&warnings, "API_ID and API_HASH must be set together; ignoring partial credentials")
		apiID = 0
		apiHash = ""
	}

	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	logFileLevel := sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings)
	logFileMaxSize := parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	logFileMaxBackups := parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	logFileMaxAge := parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	logFileCompress := parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings)

	env := EnvConfig{
		ServerAddress:   serverAddress,
		UploadDir:       uploadDir,
		UploadIndexFile: uploadIndexFile,
		LogLevel:        logLevel,
		APIID:           apiID,
		APIHash:         apiHash,
		TestDC:          testDC,
		ThrottleRPS:     throttleRPS,
		PingReply:       pingReply,
		AuthToken:       authToken,
		// Файловое логирование
		LogFile:           logFile,
		LogFileLevel:      logFileLevel,
		LogFileMaxSize:    logFileMaxSize,
		LogFileMaxBackups: logFileMaxBackups,
		LogFileMaxAge:     logFileMaxAge,
		LogFileCompress:   logFileCompress,
	}

	return &Config{
		Env:      env,
		warnings: warnings,
	}, nil
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
// на момент загрузки; для обновления надо перечитать конфиг целиком.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseOptionalInt читает необязательную целочисленную переменную окружения name.
// Пустое значение — это 0 без предупреждения; некорректное число — 0 с предупреждением.
func parseOptionalInt(name string, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; ignoring", name, value)
		return 0
	}
	return v
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
// Это позволяет не падать на несущественных настройках и иметь дефолты.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
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

// parseBoolDefault читает name как bool. Если пусто — defaultVal без предупреждения,
// если некорректно — defaultVal с предупреждением.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
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

// greaterThanZero / nonNegative — простые валидаторы чисел. Используются в
// parseIntDefault, чтобы навязать смысловые ограничения без падения приложения.
func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// sanitizeLogLevel нормализует уровень логирования и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultVal.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeValue возвращает непустое значение переменной name либо fallback
// с записью предупреждения.
func sanitizeValue(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
