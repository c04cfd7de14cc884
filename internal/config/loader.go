package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "EGRESS0R"
	DefaultConfigDir  = "./configs"
	DefaultConfigName = "config"
)

// ErrInvalid 配置内容不合法
var ErrInvalid = errors.New("invalid configuration")

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string // 配置文件或所在目录
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")

	// 环境变量覆盖，例如 EGRESS0R_SMTP_PASSWORD
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cl.viper.AutomaticEnv()
	cl.bindEnvVars()

	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Normalize()
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		if envPath := os.Getenv(cl.envPrefix + "_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = DefaultConfigDir
		}
	}

	// 指定了具体文件
	if ext := strings.ToLower(filepath.Ext(cl.configPath)); ext == ".yaml" || ext == ".yml" {
		cl.viper.SetConfigFile(cl.configPath)
		return cl.viper.ReadInConfig()
	}

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath(DefaultConfigDir)
	cl.viper.AddConfigPath(".")
	cl.viper.SetConfigName(DefaultConfigName)
	if err := cl.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	return nil
}

// bindEnvVars 绑定没有默认值的敏感字段，使其可以只通过环境变量提供
func (cl *ConfigLoader) bindEnvVars() {
	for _, key := range []string{"smtp.username", "smtp.password", "ftp.username", "ftp.password", "output.csv"} {
		_ = cl.viper.BindEnv(key, cl.envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

// setDefaults 设置默认值，与各检测项的默认参数保持一致
func (cl *ConfigLoader) setDefaults() {
	cl.viper.SetDefault("data_dir", "./data")

	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "text")
	cl.viper.SetDefault("log.output", "stderr")
	cl.viper.SetDefault("log.file_path", "./logs/egress0r.log")
	cl.viper.SetDefault("log.max_size", 10)
	cl.viper.SetDefault("log.max_backups", 3)
	cl.viper.SetDefault("log.max_age", 28)
	cl.viper.SetDefault("log.compress", true)
	cl.viper.SetDefault("log.caller", false)

	for _, name := range []string{"dns", "icmp", "smtp", "http", "ftp"} {
		cl.viper.SetDefault(name+".timeout", 5)
	}
	cl.viper.SetDefault("icmp.privileged", true)
	cl.viper.SetDefault("smtp.port", 25)
	cl.viper.SetDefault("smtp.exfil.exfil_mode", "inline")
	cl.viper.SetDefault("http.verbs", []string{"GET", "POST", "PUT", "PATCH", "DELETE"})
	cl.viper.SetDefault("http.exfil.read_mode", "text")

	cl.viper.SetDefault("port.mode", "top10")
	cl.viper.SetDefault("port.with_tcp", true)
	cl.viper.SetDefault("port.tcp_timeout", 6)
	cl.viper.SetDefault("port.with_udp", true)
	cl.viper.SetDefault("port.udp_timeout", 6)
	cl.viper.SetDefault("port.workers", 0)
	cl.viper.SetDefault("port.rate_limit", 0)
}

// GetConfigPath 实际使用的配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	return NewConfigLoader(configFile, DefaultEnvPrefix).LoadConfig()
}

var (
	mailAddrPattern = regexp.MustCompile(`^.+?@.+\..+$`)
	proxyURLPattern = regexp.MustCompile(`^(https?|socks5h?)://.+`)
)

// newValidator 创建带自定义规则的校验器，错误信息中的字段名使用 yaml 名称
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return mailAddrPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("proxyurl", func(fl validator.FieldLevel) bool {
		return proxyURLPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateEnabledSections, Config{})
	return v
}

// validateEnabledSections 已开启的检测项必须提供最基本的参数
func validateEnabledSections(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	require := func(ok bool, field interface{}, name string) {
		if !ok {
			sl.ReportError(field, name, name, "required_when_enabled", "")
		}
	}

	if cfg.Check.DNS {
		require(len(cfg.DNS.Queries) > 0 || cfg.DNS.Exfil != nil, cfg.DNS.Queries, "dns.queries")
	}
	if cfg.Check.ICMP {
		require(len(cfg.ICMP.TargetHosts) > 0, cfg.ICMP.TargetHosts, "icmp.target_hosts")
	}
	if cfg.Check.SMTP {
		require(cfg.SMTP.Host != "", cfg.SMTP.Host, "smtp.host")
		require(cfg.SMTP.Port > 0, cfg.SMTP.Port, "smtp.port")
		require(cfg.SMTP.FromAddr != "", cfg.SMTP.FromAddr, "smtp.from_addr")
		require(cfg.SMTP.ToAddr != "", cfg.SMTP.ToAddr, "smtp.to_addr")
		require(cfg.SMTP.Exfil.Filename != "", cfg.SMTP.Exfil.Filename, "smtp.exfil.filename")
	}
	if cfg.Check.HTTP {
		require(len(cfg.HTTP.URLs) > 0, cfg.HTTP.URLs, "http.urls")
		require(cfg.HTTP.Exfil.Filename != "", cfg.HTTP.Exfil.Filename, "http.exfil.filename")
	}
	if cfg.Check.FTP {
		require(cfg.FTP.Host != "", cfg.FTP.Host, "ftp.host")
		require(cfg.FTP.Exfil.Filename != "", cfg.FTP.Exfil.Filename, "ftp.exfil.filename")
	}
	if cfg.Check.Port {
		require(cfg.Port.IPv4Addr != "" || cfg.Port.IPv6Addr != "", cfg.Port.IPv4Addr, "port.ipv4_addr")
	}
}

// Validate 校验配置，所有问题合并成一个 ErrInvalid 错误返回
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}

	err := newValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed on '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed on '%s'", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
