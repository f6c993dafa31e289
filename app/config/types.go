package config

// Search is the content of criteria.yml.
type Search struct {
	General    General    `yaml:"general"`
	Thresholds Thresholds `yaml:"thresholds"`
	Retry      Retry      `yaml:"retry"`
	Searches   []Criteria `yaml:"searches"`
}

type General struct {
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
	RequestDelayMin      int `yaml:"request_delay_min"` // seconds
	RequestDelayMax      int `yaml:"request_delay_max"` // seconds
	RequestTimeout       int `yaml:"request_timeout"`   // seconds
}

type Thresholds struct {
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
}

type Retry struct {
	RateLimitAttempts int     `yaml:"rate_limit_attempts"`
	BackoffBase       int     `yaml:"backoff_base"` // seconds
	BackoffMax        int     `yaml:"backoff_max"`  // seconds
	BackoffFactor     float64 `yaml:"backoff_factor"`
	NetworkAttempts   int     `yaml:"network_attempts"`
	NetworkDelay      int     `yaml:"network_delay"` // seconds, grows linearly per attempt
}

// Criteria is one entry of the watch-list.
type Criteria struct {
	Name         string `yaml:"name"`
	Brand        string `yaml:"brand"`
	Model        string `yaml:"model"`
	MaxPrice     int64  `yaml:"max_price"` // euros
	MaxMileage   int    `yaml:"max_mileage"`
	MinYear      int    `yaml:"min_year"`
	Fuel         string `yaml:"fuel"`
	Transmission string `yaml:"transmission"`
	Priority     int    `yaml:"priority"`
}

// Rules is the content of rules.yml.
type Rules struct {
	Blacklist  map[string][]string `yaml:"blacklist"`
	Exclusions []Exclusion         `yaml:"exclusions"`
	Signals    []Signal            `yaml:"signals"`
}

// Exclusion vetoes listings of a brand (and optionally a model).
type Exclusion struct {
	Brand         string   `yaml:"brand"`
	Model         string   `yaml:"model"`
	Engines       []string `yaml:"engines"`
	Transmissions []string `yaml:"transmissions"`
	Keywords      []string `yaml:"keywords"`
	Fuels         []string `yaml:"fuels"`
	Patterns      []string `yaml:"patterns"` // regular expressions, matched case-insensitively
	Allow         []string `yaml:"allow"`    // phrases that lift this rule
	Reason        string   `yaml:"reason"`
}

// Signal adds Delta to a listing's score when every condition it sets holds.
type Signal struct {
	Name         string   `yaml:"name"`
	Delta        int      `yaml:"delta"`
	Brand        string   `yaml:"brand"`
	Model        string   `yaml:"model"`
	Keywords     []string `yaml:"keywords"`
	Fuel         string   `yaml:"fuel"`
	Transmission string   `yaml:"transmission"`
	PriceBelow   int64    `yaml:"price_below"` // euros
	MileageBelow int      `yaml:"mileage_below"`
	YearFrom     int      `yaml:"year_from"`
}

// Config is one validated snapshot of both files.
type Config struct {
	Search Search
	Rules  Rules
}
