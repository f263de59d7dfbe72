package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "LINE_NOTIFY"

	keyConfigFile          = "config"
	keyClientID            = "client_id"
	keyClientSecret        = "client_secret"
	keyRedirectURI         = "redirect_uri"
	keyAccessToken         = "access_token"
	keyOAuthBaseURL        = "oauth_base_url"
	keyAPIBaseURL          = "api_base_url"
	keyLogLevel            = "log_level"
	keyLogFormat           = "log_format"
	keyJournalPath         = "journal_path"
	keyConnectionTimeout   = "connection_timeout_sec"
	keyOperationTimeoutSec = "operation_timeout_sec"

	defaultConnectionTimeoutSec = 10
	defaultOperationTimeoutSec  = 30
)

// FlagConfigFile names the flag that points at an optional config file.
const FlagConfigFile = "config"

var bracedReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrMissingCredentials is returned by RequireCredentials when the client id or secret is unset.
var ErrMissingCredentials = errors.New("config: missing client credentials")

// Config holds the CLI settings resolved from the environment and an optional config file.
type Config struct {
	clientID             string
	clientSecret         string
	redirectURI          string
	accessToken          string
	oauthBaseURL         string
	apiBaseURL           string
	logLevel             string
	logFormat            string
	journalPath          string
	connectionTimeoutSec int
	operationTimeoutSec  int
}

// BindFlags registers --config on flags and binds it to v. A set flag wins
// over LINE_NOTIFY_CONFIG.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags.Lookup(FlagConfigFile) == nil {
		flags.String(FlagConfigFile, "", "path to a YAML, JSON or TOML config file (env LINE_NOTIFY_CONFIG)")
	}
	if err := v.BindPFlag(keyConfigFile, flags.Lookup(FlagConfigFile)); err != nil {
		return fmt.Errorf("bind --%s: %w", FlagConfigFile, err)
	}
	return nil
}

// Load resolves configuration from LINE_NOTIFY_* environment variables and,
// when --config or LINE_NOTIFY_CONFIG names one, a YAML/JSON/TOML file.
// Environment values win over the file. ${VAR} references are expanded only
// in values that come from the file; environment values are used verbatim.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyLogLevel, "INFO")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyConnectionTimeout, strconv.Itoa(defaultConnectionTimeoutSec))
	v.SetDefault(keyOperationTimeoutSec, strconv.Itoa(defaultOperationTimeoutSec))

	for _, key := range []string{
		keyClientID, keyClientSecret, keyRedirectURI, keyAccessToken,
		keyOAuthBaseURL, keyAPIBaseURL, keyJournalPath,
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configPath := strings.TrimSpace(v.GetString(keyConfigFile)); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	var errorMessages []string
	connectionTimeoutSec, err := loadPositiveInt(v, keyConnectionTimeout)
	if err != nil {
		errorMessages = append(errorMessages, err.Error())
	}
	operationTimeoutSec, err := loadPositiveInt(v, keyOperationTimeoutSec)
	if err != nil {
		errorMessages = append(errorMessages, err.Error())
	}
	if len(errorMessages) > 0 {
		return Config{}, fmt.Errorf("configuration errors: %s", strings.Join(errorMessages, ", "))
	}

	return Config{
		clientID:             loadString(v, keyClientID),
		clientSecret:         loadString(v, keyClientSecret),
		redirectURI:          loadString(v, keyRedirectURI),
		accessToken:          loadString(v, keyAccessToken),
		oauthBaseURL:         loadString(v, keyOAuthBaseURL),
		apiBaseURL:           loadString(v, keyAPIBaseURL),
		logLevel:             loadString(v, keyLogLevel),
		logFormat:            loadString(v, keyLogFormat),
		journalPath:          loadString(v, keyJournalPath),
		connectionTimeoutSec: connectionTimeoutSec,
		operationTimeoutSec:  operationTimeoutSec,
	}, nil
}

func loadString(v *viper.Viper, key string) string {
	rawValue := v.GetString(key)
	if environmentValue, present := os.LookupEnv(environmentName(key)); present && environmentValue != "" {
		return strings.TrimSpace(rawValue)
	}
	return strings.TrimSpace(expandBraced(rawValue))
}

// expandBraced replaces ${NAME} with the environment value of NAME and leaves
// any other '$' untouched.
func expandBraced(value string) string {
	return bracedReference.ReplaceAllStringFunc(value, func(reference string) string {
		return os.Getenv(bracedReference.FindStringSubmatch(reference)[1])
	})
}

func loadPositiveInt(v *viper.Viper, key string) (int, error) {
	const invalidIntFormat = "invalid integer for %s: %v"
	rawValue := loadString(v, key)
	parsedInteger, conversionError := strconv.Atoi(rawValue)
	if conversionError != nil {
		return 0, fmt.Errorf(invalidIntFormat, environmentName(key), conversionError)
	}
	if parsedInteger <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", environmentName(key), parsedInteger)
	}
	return parsedInteger, nil
}

func environmentName(key string) string {
	return envPrefix + "_" + strings.ToUpper(key)
}

// RequireCredentials reports ErrMissingCredentials unless both client id and secret are set.
func (configuration Config) RequireCredentials() error {
	var missing []string
	if configuration.clientID == "" {
		missing = append(missing, environmentName(keyClientID))
	}
	if configuration.clientSecret == "" {
		missing = append(missing, environmentName(keyClientSecret))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

func (configuration Config) ClientID() string     { return configuration.clientID }
func (configuration Config) ClientSecret() string { return configuration.clientSecret }
func (configuration Config) RedirectURI() string  { return configuration.redirectURI }
func (configuration Config) AccessToken() string  { return configuration.accessToken }
func (configuration Config) OAuthBaseURL() string { return configuration.oauthBaseURL }
func (configuration Config) APIBaseURL() string   { return configuration.apiBaseURL }
func (configuration Config) LogLevel() string     { return configuration.logLevel }
func (configuration Config) LogFormat() string    { return configuration.logFormat }
func (configuration Config) JournalPath() string  { return configuration.journalPath }

func (configuration Config) ConnectionTimeout() time.Duration {
	return time.Duration(configuration.connectionTimeoutSec) * time.Second
}

func (configuration Config) OperationTimeout() time.Duration {
	return time.Duration(configuration.operationTimeoutSec) * time.Second
}
