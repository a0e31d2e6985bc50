package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/importexport"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/system"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `usage: labctl [flags] <command> [args]

commands:
  login --email E [--password P]   sign in (password read from stdin if omitted)
  logout                           end the session
  whoami                           show the signed-in user
  devices list                     list devices
  devices check ID [--fail c,...]  record an inspection; listed components failed
  import FILE                      import devices from .csv or .xlsx
  export FILE                      export devices to .csv or .xlsx
  template FILE                    write an empty import sheet
  reset --yes                      restore the seed data (admin only)
`

var errUsage = errors.New("invalid usage")

type app struct {
	cfg    *config.Config
	comps  *system.Components
	gate   *auth.Gate
	logger *zap.Logger
	in     *bufio.Reader
	out    io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flags := pflag.NewFlagSet("labctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", "", "path to the YAML config file")
	debug := flags.Bool("debug", false, "log to stderr")
	flags.String("storage.driver", config.DriverLocal, "storage driver: local, remote or postgres")
	flags.String("storage.local.path", "openlab.db", "embedded store file")
	flags.String("auth.session_file", "", "where the session token is kept")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v\n%s", errUsage, err, usage)
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("%w\n%s", errUsage, usage)
	}
	logger := zap.NewNop()
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, changedOnly(flags))
	if err != nil {
		return err
	}

	comps, err := system.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	a := &app{
		cfg:    cfg,
		comps:  comps,
		gate:   auth.NewGate(comps.Auth, auth.NewFileSessionStore(cfg.Auth.SessionFile), logger),
		logger: logger,
		in:     bufio.NewReader(stdin),
		out:    stdout,
	}
	if err := a.gate.Resolve(ctx); err != nil {
		logger.Warn("Could not restore session", zap.Error(err))
	}
	return a.dispatch(ctx, flags.Args())
}

// changedOnly returns the flags the user actually set, so unset flags never
// override the config file.
func changedOnly(flags *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet("changed", pflag.ContinueOnError)
	flags.Visit(func(f *pflag.Flag) {
		if f.Name != "config" && f.Name != "debug" {
			out.AddFlag(f)
		}
	})
	return out
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami()
	case "devices":
		if len(rest) == 0 {
			return fmt.Errorf("%w: devices needs list or check", errUsage)
		}
		switch rest[0] {
		case "list":
			return a.listDevices(ctx)
		case "check":
			return a.checkDevice(ctx, rest[1:])
		}
		return fmt.Errorf("%w: unknown devices command %q", errUsage, rest[0])
	case "import":
		return a.importFile(ctx, rest)
	case "export":
		return a.exportFile(ctx, rest)
	case "template":
		return a.templateFile(rest)
	case "reset":
		return a.reset(ctx, rest)
	case "help":
		_, err := io.WriteString(a.out, usage)
		return err
	}
	return fmt.Errorf("%w: unknown command %q\n%s", errUsage, cmd, usage)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *email == "" {
		return fmt.Errorf("%w: --email is required", errUsage)
	}
	if *password == "" {
		fmt.Fprint(a.out, "Password: ")
		line, err := a.in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	user, err := a.gate.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", user.Name, user.Email)
	if a.gate.ForceChangePassword() {
		fmt.Fprintln(a.out, "This account must change its password before continuing.")
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.gate.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) whoami() error {
	user, ok := a.gate.CurrentUser()
	if !ok {
		return types.NewAuthError(types.ErrSessionNotFound)
	}
	fmt.Fprintf(a.out, "%s <%s> role=%s\n", user.Name, user.Email, user.Role)
	return nil
}

// require fails unless a user is signed in and, when perm is non-empty,
// holds it.
func (a *app) require(perm types.Permission) (*types.User, error) {
	user, ok := a.gate.CurrentUser()
	if !ok {
		return nil, types.NewAuthError(types.ErrSessionNotFound)
	}
	if perm != "" && !a.gate.Can(perm) {
		return nil, fmt.Errorf("permission %s required", perm)
	}
	return user, nil
}

func (a *app) listDevices(ctx context.Context) error {
	if _, err := a.require(""); err != nil {
		return err
	}
	devices, err := a.comps.Repo.ListDevices(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAB\tSTATUS\tLAST CHECK")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Lab, d.Status.Label(), d.LastCheck)
	}
	return tw.Flush()
}

func (a *app) checkDevice(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	failed := fs.StringSlice("fail", nil, "components that failed: keyboard, mouse, monitor, cables, software")
	notes := fs.String("notes", "", "inspection notes")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: devices check needs one device id", errUsage)
	}

	in, err := checkInput(*failed)
	if err != nil {
		return err
	}
	in.Notes = *notes

	user, err := a.require("")
	if err != nil {
		return err
	}
	device, err := a.comps.Repo.SubmitChecklist(ctx, fs.Arg(0), in, user)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is now %s\n", device.ID, device.Status.Label())
	return nil
}

// checkInput marks every component as passing except the failed ones.
func checkInput(failed []string) (repository.CheckInput, error) {
	in := repository.CheckInput{Keyboard: true, Mouse: true, Monitor: true, Cables: true, Software: true}
	for _, c := range failed {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "keyboard":
			in.Keyboard = false
		case "mouse":
			in.Mouse = false
		case "monitor":
			in.Monitor = false
		case "cables":
			in.Cables = false
		case "software":
			in.Software = false
		default:
			return in, fmt.Errorf("%w: unknown component %q", errUsage, c)
		}
	}
	return in, nil
}

func (a *app) importFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: import needs a file", errUsage)
	}
	if _, err := a.require(types.PermManageInventory); err != nil {
		return err
	}
	format, err := importexport.FormatFromName(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	rows, parseErrs, err := importexport.Parse(f, format)
	if err != nil {
		return err
	}
	report, err := importexport.NewImporter(a.comps.Repo, a.logger).Import(ctx, rows, parseErrs)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Imported %d, updated %d, errors %d\n", report.Imported, report.Updated, report.Errors)
	for _, d := range report.Details {
		fmt.Fprintln(a.out, "  "+d.String())
	}
	return nil
}

func (a *app) exportFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: export needs a file", errUsage)
	}
	if _, err := a.require(""); err != nil {
		return err
	}
	format, err := importexport.FormatFromName(args[0])
	if err != nil {
		return err
	}
	devices, err := a.comps.Repo.ListDevices(ctx)
	if err != nil {
		return err
	}
	if err := writeFile(args[0], func(w io.Writer) error {
		return importexport.Export(w, format, devices)
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %d devices to %s\n", len(devices), args[0])
	return nil
}

func (a *app) templateFile(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: template needs a file", errUsage)
	}
	format, err := importexport.FormatFromName(args[0])
	if err != nil {
		return err
	}
	return writeFile(args[0], func(w io.Writer) error {
		return importexport.Template(w, format)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) reset(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("reset", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "confirm the reset")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !*yes {
		return fmt.Errorf("%w: reset discards all data; pass --yes", errUsage)
	}

	user, err := a.require("")
	if err != nil {
		return err
	}
	if user.Role != types.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	if err := a.comps.Repo.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Store reset to seed data")
	return nil
}
