package app

// Config holds everything an App instance needs to run one lifecycle command.
type Config struct {
	WorkDir   string // working directory owning the pipeline
	ParamFile string // parameter document, relative to WorkDir unless absolute

	LogFormat string
	LogLevel  string

	Force      bool   // overwrite an existing parameter file on setup
	ResumeFrom string // optional stage-name override for submit/resume
	StopAfter  string // optional clean-halt bound override
}

// NewConfig applies defaults and returns a validated configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.ParamFile == "" {
		cfg.ParamFile = "parameters.hcl"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
