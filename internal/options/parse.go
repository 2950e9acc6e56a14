// Package options turns adltransfer's command line into a transfer
// configuration and a set of credentials.
package options

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tonimelisma/adltransfer/internal/auth"
	"github.com/tonimelisma/adltransfer/internal/secret"
	"github.com/tonimelisma/adltransfer/internal/transfer"
)

// ErrSourceNotFound is returned when an upload source is neither a file nor
// a directory.
//
//nolint:staticcheck // printed verbatim to the user
var ErrSourceNotFound = errors.New("The source file or folder does not exist.")

// ErrIncompleteServicePrincipal is returned when service principal sign-in
// is requested without a client id, tenant id and key.
//
//nolint:staticcheck // printed verbatim to the user
var ErrIncompleteServicePrincipal = errors.New(
	"Please specify the client id, tenant id and authentication key using the -u, -t and -p options.")

// ParseError reports malformed command line syntax.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Action is what the caller should do with a parsed command line.
type Action int

const (
	// ActionRun runs the transfer in Result.Config.
	ActionRun Action = iota
	// ActionHelp prints the help text.
	ActionHelp
	// ActionSamples prints the command line samples.
	ActionSamples
)

// StatFunc reports file information; os.Stat in production.
type StatFunc func(name string) (os.FileInfo, error)

// Result is a successfully parsed command line.
type Result struct {
	Action      Action
	Config      transfer.Config
	Credentials auth.Credentials
	Verbose     bool
}

// values receives the flag values during parsing.
type values struct {
	user             string
	password         string
	tenant           string
	servicePrincipal bool

	fileThreads     int
	concurrentFiles int
	segment         int64

	binary    bool
	overwrite bool
	recursive bool
	resume    bool
	download  bool
	metadata  string

	verbose bool
	help    bool
	samples bool
}

// longAliases maps alternative long names to the flag they set.
var longAliases = map[string]string{
	"spi": "serviceprincipal",
}

// newFlagSet declares every option, bound to v. Defaults come from base.
func newFlagSet(v *values, base transfer.Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("adltransfer", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if alias, ok := longAliases[name]; ok {
			name = alias
		}

		return pflag.NormalizedName(name)
	})

	fs.StringVarP(&v.user, "user", "u", "",
		"The `name` of Azure Active Directory user\nor the client id of the Service Principal.")
	fs.StringVarP(&v.password, "password", "p", "",
		"The `password` of Azure Active Directory user\nor the authentication key of the Service Principal.")
	fs.StringVarP(&v.tenant, "tenant", "t", "",
		"The `id` of Azure Active Directory tenant.")
	fs.BoolVarP(&v.servicePrincipal, "serviceprincipal", "i", false,
		"Use an Azure Active Directory Service Principal to authenticate (alias --spi).")

	fs.IntVarP(&v.fileThreads, "filethreads", "f", base.PerFileThreadCount,
		"The maximum `count` of threads used to upload each file.")
	fs.IntVarP(&v.concurrentFiles, "concurrentfiles", "c", base.ConcurrentFileCount,
		"The maximum `number` of concurrent file uploads.")
	fs.Int64VarP(&v.segment, "segment", "s", base.MaxSegmentLength,
		"The maximum `length` of each segment (in bytes).\nThe default is 256mb, which gives you optimal performance.")

	fs.BoolVarP(&v.binary, "binary", "b", false,
		"The input file will be treated as a binary.\nOtherwise the file will be treated as delimited input.")
	fs.BoolVarP(&v.overwrite, "overwrite", "o", false,
		"Overwrite the target stream, if it already exists.")
	fs.BoolVarP(&v.recursive, "recursive", "r", false,
		"Recursively upload the source folder and its subfolders.\n"+
			"This is only valid for folder uploads and will be ignored for file uploads.")
	fs.BoolVar(&v.resume, "resume", false,
		"Resume a previously interrupted upload.")

	fs.BoolVarP(&v.download, "download", "d", false,
		"Download the file(s) instead of uploading.")
	fs.StringVarP(&v.metadata, "metadata", "m", base.MetadataDir,
		"The directory `path` where to store the local upload metadata file while the upload is in progress.")

	fs.BoolVarP(&v.verbose, "verbose", "v", false,
		"Provide detailed status messages.")
	fs.BoolVarP(&v.help, "help", "h", false,
		"Show this help text.")
	fs.BoolVar(&v.samples, "samples", false,
		"Show Command line samples.")

	return fs
}

// Parse interprets args (without the program name). base supplies the
// defaults for tuning values and the metadata directory. stat checks that an
// upload source exists.
func Parse(args []string, base transfer.Config, stat StatFunc) (*Result, error) {
	var v values

	fs := newFlagSet(&v, base)

	if err := fs.Parse(normalizeArgs(args, fs)); err != nil {
		return nil, &ParseError{Err: err}
	}

	if v.samples {
		return &Result{Action: ActionSamples}, nil
	}

	positionals := fs.Args()
	if len(positionals) < 3 || v.help {
		return &Result{Action: ActionHelp}, nil
	}

	if err := checkPositive(&v); err != nil {
		return nil, &ParseError{Err: err}
	}

	cfg := base
	cfg.SourcePath = positionals[0]
	cfg.TargetPath = positionals[1]
	cfg.AccountName = positionals[2]
	cfg.PerFileThreadCount = v.fileThreads
	cfg.ConcurrentFileCount = v.concurrentFiles
	cfg.MaxSegmentLength = v.segment
	cfg.Overwrite = v.overwrite
	cfg.Resume = v.resume
	cfg.Binary = v.binary
	cfg.Recursive = v.recursive
	cfg.MetadataDir = v.metadata
	cfg.Direction = transfer.Upload

	if v.download {
		cfg.Direction = transfer.Download
	}

	if !cfg.IsDownload() {
		if _, err := stat(cfg.SourcePath); err != nil {
			return nil, ErrSourceNotFound
		}
	}

	var key *secret.Secret
	if fs.Changed("password") {
		key = secret.FromString(v.password)
	}

	if v.servicePrincipal && (v.user == "" || key.Len() == 0 || v.tenant == "") {
		key.Destroy()
		return nil, ErrIncompleteServicePrincipal
	}

	return &Result{
		Action: ActionRun,
		Config: cfg,
		Credentials: auth.Credentials{
			UserName:         v.user,
			Secret:           key,
			TenantID:         v.tenant,
			ServicePrincipal: v.servicePrincipal,
		},
		Verbose: v.verbose,
	}, nil
}

func checkPositive(v *values) error {
	switch {
	case v.fileThreads < 1:
		return fmt.Errorf("option -f/--filethreads must be positive, got %d", v.fileThreads)
	case v.concurrentFiles < 1:
		return fmt.Errorf("option -c/--concurrentfiles must be positive, got %d", v.concurrentFiles)
	case v.segment < 1:
		return fmt.Errorf("option -s/--segment must be positive, got %d", v.segment)
	default:
		return nil
	}
}

// normalizeArgs rewrites single-dash long options such as -spi or -resume
// to their double-dash form. pflag would otherwise read them as a group of
// shorthands. "-?" becomes --help. Arguments after "--" are left alone.
func normalizeArgs(args []string, fs *pflag.FlagSet) []string {
	out := make([]string, 0, len(args))

	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}

		if arg == "-?" {
			out = append(out, "--help")
			continue
		}

		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			name, _, _ := strings.Cut(arg[1:], "=")
			if isLongName(fs, name) {
				arg = "-" + arg
			}
		}

		out = append(out, arg)
	}

	return out
}

func isLongName(fs *pflag.FlagSet, name string) bool {
	if _, ok := longAliases[name]; ok {
		return true
	}

	return fs.Lookup(name) != nil
}
