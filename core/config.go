package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		DisableReqLogs     bool
		JWTExpirationDelta time.Duration
		AllowOrigins       []string
	}

	databaseConfig struct {
		Engine        string // postgres | mysql | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	restConfig struct {
		URL        string
		ServiceKey string
		Timeout    time.Duration
	}

	libraryConfig struct {
		FeePerDay      decimal.Decimal
		CurrencySymbol string
		DueSoonDays    int
		Workers        int
		NotifyInterval time.Duration
		ActionURL      string
	}

	mailConfig struct {
		MaxAttempts int
	}

	// Config holds the application settings, resolved once at start up.
	Config struct {
		Env              string // DEV | TEST | QA | PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		Storage          string // sql | rest | memory
		WorkDir          string
		defaultFromEmail string

		Server   serverConfig
		Database databaseConfig
		Rest     restConfig
		Library  libraryConfig
		Mail     mailConfig
	}
)

// DefaultFromEmail parses the configured sender address.
// An unparsable value falls back to a bare address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (c databaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("app_name", "School ERP")
	v.SetDefault("secret_key", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("default_from_email", "School ERP Library <library@localhost>")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("storage", "sql")

	v.SetDefault("server_host", "0.0.0.0:8000")
	v.SetDefault("server_debug_host", "0.0.0.0:4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("server_disable_req_logs", false)
	v.SetDefault("server_jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server_allow_origins", []string{"*"})

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "schoolerp")
	v.SetDefault("db_user", "schoolerp")
	v.SetDefault("db_password", "")
	v.SetDefault("db_admin_user", "postgres")
	v.SetDefault("db_admin_password", "")
	v.SetDefault("db_disable_tls", true)

	v.SetDefault("rest_url", "")
	v.SetDefault("rest_service_key", "")
	v.SetDefault("rest_timeout", 10*time.Second)

	v.SetDefault("library_fee_per_day", "3")
	v.SetDefault("library_currency_symbol", "")
	v.SetDefault("library_due_soon_days", 2)
	v.SetDefault("library_workers", 1)
	v.SetDefault("library_notify_interval", time.Duration(0))
	v.SetDefault("library_action_url", "/library")

	v.SetDefault("mail_max_attempts", 3)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	feePerDay, err := decimal.NewFromString(v.GetString("library_fee_per_day"))
	if err != nil {
		log.Fatalf("config.library_fee_per_day(%s): %v", v.GetString("library_fee_per_day"), err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("test_mode"),
		AppName:          v.GetString("app_name"),
		SecretKey:        v.GetString("secret_key"),
		FrontendBaseURL:  v.GetString("frontend_base_url"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		RollbarToken:     v.GetString("rollbar_token"),
		Storage:          strings.ToLower(v.GetString("storage")),
		WorkDir:          workDir,
		defaultFromEmail: v.GetString("default_from_email"),
		Server: serverConfig{
			Host:               v.GetString("server_host"),
			DebugHost:          v.GetString("server_debug_host"),
			ShutdownTimeout:    v.GetDuration("server_shutdown_timeout"),
			DisableReqLogs:     v.GetBool("server_disable_req_logs"),
			JWTExpirationDelta: v.GetDuration("server_jwt_expiration_delta"),
			AllowOrigins:       v.GetStringSlice("server_allow_origins"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_admin_user"),
			AdminPassword: v.GetString("db_admin_password"),
			DisableTLS:    v.GetBool("db_disable_tls"),
		},
		Rest: restConfig{
			URL:        strings.TrimRight(v.GetString("rest_url"), "/"),
			ServiceKey: v.GetString("rest_service_key"),
			Timeout:    v.GetDuration("rest_timeout"),
		},
		Library: libraryConfig{
			FeePerDay:      feePerDay,
			CurrencySymbol: v.GetString("library_currency_symbol"),
			DueSoonDays:    v.GetInt("library_due_soon_days"),
			Workers:        v.GetInt("library_workers"),
			NotifyInterval: v.GetDuration("library_notify_interval"),
			ActionURL:      v.GetString("library_action_url"),
		},
		Mail: mailConfig{
			MaxAttempts: v.GetInt("mail_max_attempts"),
		},
	}
}
