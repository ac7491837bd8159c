package config

const (
	defaultDataDir            = "~/.local/share/reelboard"
	defaultLogDir             = "~/.local/share/reelboard/logs"
	defaultAPIBind            = "127.0.0.1:7733"
	defaultProviderBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultProviderModel      = "veo-3.1-generate-preview"
	defaultRequestTimeout     = 30
	defaultDownloadTimeout    = 300
	defaultAspectRatio        = "16:9"
	defaultMaxCharacters      = 10
	defaultMaxCharacterImages = 5
	defaultMaxSceneCharacters = 3
	defaultPollInterval       = 5
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Provider: Provider{
			BaseURL:         defaultProviderBaseURL,
			Model:           defaultProviderModel,
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Storyboard: Storyboard{
			DefaultAspectRatio: defaultAspectRatio,
			MaxCharacters:      defaultMaxCharacters,
			MaxCharacterImages: defaultMaxCharacterImages,
			MaxSceneCharacters: defaultMaxSceneCharacters,
		},
		Workflow: Workflow{
			PollInterval: defaultPollInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
