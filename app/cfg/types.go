package cfg

type Cfg struct {
	// Storage configuration
	DataDir string

	// Application configuration
	Port         string
	APIAccessKey string
	CronSchedule string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
