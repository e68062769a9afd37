package config

import (
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Options struct {
	Username           string        `long:"username" short:"u" env:"OMNITURE_USERNAME" description:"API username (user:company)"`
	Secret             string        `long:"secret" env:"OMNITURE_SECRET" description:"Shared secret issued for the API user"`
	Environment        string        `long:"environment" short:"e" env:"OMNITURE_ENVIRONMENT" description:"Named API environment (san_jose, dallas, london, san_jose_beta, dallas_beta, sandbox)"`
	Endpoint           string        `long:"endpoint" env:"OMNITURE_ENDPOINT" description:"Custom API endpoint URL; overrides --environment"`
	PollInterval       time.Duration `long:"poll-interval" env:"OMNITURE_POLL_INTERVAL" description:"Delay between report status checks (default 250ms)"`
	PollMaxAttempts    uint          `long:"poll-max-attempts" env:"OMNITURE_POLL_MAX_ATTEMPTS" description:"Give up after this many status checks (0 = bounded by --poll-timeout only)"`
	PollTimeout        time.Duration `long:"poll-timeout" env:"OMNITURE_POLL_TIMEOUT" description:"Give up polling a report after this long (default 15m)"`
	HTTPTimeout        time.Duration `long:"http-timeout" env:"OMNITURE_HTTP_TIMEOUT" description:"Per-request HTTP timeout (default 30s)"`
	InsecureSkipVerify bool          `long:"insecure-skip-verify" env:"OMNITURE_INSECURE_SKIP_VERIFY" description:"Do not verify the API server's TLS certificate"`
	Log                bool          `long:"log" env:"OMNITURE_LOG" description:"Enable request/poll logging"`
	Debug              bool          `long:"debug" env:"OMNITURE_DEBUG" description:"Enable verbose debug output (implies --log)"`
	LogPersist         bool          `long:"log-persist" env:"OMNITURE_LOG_PERSIST" description:"Also write logs as JSON lines, one file series per run"`
	LogDir             string        `long:"log-dir" env:"OMNITURE_LOG_DIR" description:"Directory for persisted logs (default: user cache directory)"`
	LogMaxBytes        int64         `long:"log-max-bytes" env:"OMNITURE_LOG_MAX_BYTES" description:"Start a new log file part after this many bytes (default 5 MiB)"`
	SaveProfile        bool          `long:"save-profile" description:"Save the effective connection settings as the default profile"`
	NoProfile          bool          `long:"no-profile" description:"Ignore the saved profile"`

	Request    RequestCommand    `command:"request" description:"Call an API method once and print the decoded response"`
	Report     ReportCommand     `command:"report" description:"Queue one or more reports and wait for their data"`
	MockServer MockServerCommand `command:"mock-server" description:"Serve a local fake of the analytics API"`
}

type RequestCommand struct {
	Method string `long:"method" short:"m" required:"true" description:"API method name (e.g. Company.GetReportSuites)"`
	Params string `long:"params" short:"p" description:"JSON or YAML file with request parameters ('-' for stdin)"`
}

type ReportCommand struct {
	Method string `long:"method" short:"m" default:"Report.Queue" description:"Queue method used to submit each description"`
	Args   struct {
		Descriptions []string `positional-arg-name:"DESCRIPTION" required:"1" description:"JSON or YAML report description files ('-' for stdin)"`
	} `positional-args:"yes"`
}

type MockServerCommand struct {
	Listen     string `long:"listen" default:"127.0.0.1:8089" description:"Address to listen on"`
	ReadyAfter int    `long:"ready-after" default:"2" description:"Report.Get calls answered with report_not_ready before data is returned"`
}

const (
	CommandRequest    = "request"
	CommandReport     = "report"
	CommandMockServer = "mock-server"
)

// ParseOptions loads .env (if present) and parses the process arguments.
// It returns the options and the name of the selected command.
func ParseOptions() (Options, string, error) {
	_ = godotenv.Load()
	return parseArgs(os.Args[1:], flags.Default)
}

// ParseArgs parses args without printing usage or errors.
func ParseArgs(args []string) (Options, string, error) {
	return parseArgs(args, flags.HelpFlag|flags.PassDoubleDash)
}

func parseArgs(args []string, parserOpts flags.Options) (Options, string, error) {
	opts := Options{}
	parser := flags.NewParser(&opts, parserOpts)
	if _, err := parser.ParseArgs(args); err != nil {
		return Options{}, "", err
	}
	command := ""
	if parser.Active != nil {
		command = parser.Active.Name
	}
	return opts, command, nil
}
