package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Storage    StorageConfig    `validate:"required"`
	Templates  TemplateConfig   `validate:"required"`
	Render     RenderConfig     `validate:"required"`
	Typst      TypstConfig
	Browser    BrowserConfig
	Raster     RasterConfig  `validate:"required"`
	Compose    ComposeConfig `validate:"required"`
	S3         S3Config
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
	// MaxUploadBytes bounds multipart attachment uploads
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	// AllowedOrigins lists CORS origins, "*" allows any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

// StorageConfig locates the record store and generated artifacts
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir" validate:"required"`
	ArtifactDir string `mapstructure:"artifact_dir" validate:"required"`
	// NumberWidth is the zero padded width of display numbers (PO0007)
	NumberWidth int `mapstructure:"number_width" validate:"min=1,max=12"`
}

type TemplateConfig struct {
	Dir string `validate:"required"`
	// Placeholder is printed wherever an optional field has no value
	Placeholder string        `validate:"required"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type RenderConfig struct {
	// Timeout bounds a single engine run end to end
	Timeout time.Duration `validate:"required"`
}

type TypstConfig struct {
	Binary  string
	FontDir string `mapstructure:"font_dir"`
}

type BrowserConfig struct {
	// Bin is an explicit Chromium binary, empty lets rod resolve one
	Bin         string
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// Paper size in inches
	PaperWidth  float64 `mapstructure:"paper_width"`
	PaperHeight float64 `mapstructure:"paper_height"`
	NoSandbox   bool    `mapstructure:"no_sandbox"`
}

type RasterConfig struct {
	Binary    string        `validate:"required"`
	DPI       int           `validate:"min=36,max=600"`
	MaxWidth  int           `mapstructure:"max_width" validate:"min=1"`
	MaxHeight int           `mapstructure:"max_height" validate:"min=1"`
	Quality   int           `validate:"min=1,max=100"`
	Timeout   time.Duration `validate:"required"`
	Workers   int           `validate:"min=1"`
}

type ComposeConfig struct {
	// AppendixPath is the fixed boilerplate document appended on request
	AppendixPath string `mapstructure:"appendix_path"`
	// BrandingImage is stamped in the running header when set
	BrandingImage string `mapstructure:"branding_image"`
	BrandName     string `mapstructure:"brand_name" validate:"required"`
	// DocumentCode is the fixed tag printed in every footer
	DocumentCode string `mapstructure:"document_code" validate:"required"`
	// Font used for running header/footer text, must cover Arabic for ar documents
	Font     string
	FontSize int `mapstructure:"font_size" validate:"min=4,max=24"`
}

type S3Config struct {
	Enabled               bool
	Region                string
	Bucket                string
	KeyPrefix             string `mapstructure:"key_prefix"`
	PresignExpiryDuration string `mapstructure:"presign_expiry_duration"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Modify config paths to ensure config.yaml is found
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/backoffice")

	// Set up environment variables support
	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.artifact_dir", d.Storage.ArtifactDir)
	v.SetDefault("storage.number_width", d.Storage.NumberWidth)
	v.SetDefault("templates.dir", d.Templates.Dir)
	v.SetDefault("templates.placeholder", d.Templates.Placeholder)
	v.SetDefault("templates.cache_ttl", d.Templates.CacheTTL)
	v.SetDefault("render.timeout", d.Render.Timeout)
	v.SetDefault("typst.binary", d.Typst.Binary)
	v.SetDefault("typst.font_dir", d.Typst.FontDir)
	v.SetDefault("browser.bin", d.Browser.Bin)
	v.SetDefault("browser.load_timeout", d.Browser.LoadTimeout)
	v.SetDefault("browser.idle_timeout", d.Browser.IdleTimeout)
	v.SetDefault("browser.paper_width", d.Browser.PaperWidth)
	v.SetDefault("browser.paper_height", d.Browser.PaperHeight)
	v.SetDefault("browser.no_sandbox", d.Browser.NoSandbox)
	v.SetDefault("raster.binary", d.Raster.Binary)
	v.SetDefault("raster.dpi", d.Raster.DPI)
	v.SetDefault("raster.max_width", d.Raster.MaxWidth)
	v.SetDefault("raster.max_height", d.Raster.MaxHeight)
	v.SetDefault("raster.quality", d.Raster.Quality)
	v.SetDefault("raster.timeout", d.Raster.Timeout)
	v.SetDefault("raster.workers", d.Raster.Workers)
	v.SetDefault("compose.appendix_path", d.Compose.AppendixPath)
	v.SetDefault("compose.branding_image", d.Compose.BrandingImage)
	v.SetDefault("compose.brand_name", d.Compose.BrandName)
	v.SetDefault("compose.document_code", d.Compose.DocumentCode)
	v.SetDefault("compose.font", d.Compose.Font)
	v.SetDefault("compose.font_size", d.Compose.FontSize)
	v.SetDefault("s3.enabled", d.S3.Enabled)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.key_prefix", d.S3.KeyPrefix)
	v.SetDefault("s3.presign_expiry_duration", d.S3.PresignExpiryDuration)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		return errors.New("s3.bucket and s3.region are required when s3 is enabled")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server: ServerConfig{
			Address:        ":8080",
			MaxUploadBytes: 25 << 20,
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{Level: types.LogLevelDebug},
		Storage: StorageConfig{
			DataDir:     "data",
			ArtifactDir: "data/artifacts",
			NumberWidth: 4,
		},
		Templates: TemplateConfig{
			Dir:         "assets/templates",
			Placeholder: "—",
			CacheTTL:    10 * time.Minute,
		},
		Render: RenderConfig{Timeout: 90 * time.Second},
		Typst: TypstConfig{
			Binary:  "typst",
			FontDir: "assets/fonts",
		},
		Browser: BrowserConfig{
			LoadTimeout: 60 * time.Second,
			IdleTimeout: 15 * time.Second,
			PaperWidth:  8.5,
			PaperHeight: 11,
		},
		Raster: RasterConfig{
			Binary:    "pdftoppm",
			DPI:       100,
			MaxWidth:  850,
			MaxHeight: 1100,
			Quality:   85,
			Timeout:   60 * time.Second,
			Workers:   4,
		},
		Compose: ComposeConfig{
			AppendixPath: "assets/appendix/terms.pdf",
			BrandName:    "Back Office",
			DocumentCode: "F-DOC-01",
			Font:         "Helvetica",
			FontSize:     9,
		},
		S3: S3Config{
			PresignExpiryDuration: "30m",
		},
	}
}
