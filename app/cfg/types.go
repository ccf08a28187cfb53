package cfg

type Cfg struct {
	// Application configuration
	DataDir      string
	Port         string
	BaseUrl      string
	WebDir       string
	APIAccessKey string

	// Twitter scraping
	TwitterScriptLocation string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
