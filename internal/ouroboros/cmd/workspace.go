package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ouroboros/internal/analysis"
	"ouroboros/internal/config"
	"ouroboros/internal/logging"
	olog "ouroboros/internal/ouroboros/log"
)

// ErrBadRename is returned for a --rename value that is not from=to.
var ErrBadRename = errors.New("rename must be from=to")

// workspace is an analysed binary plus the configuration it was analysed
// with.
type workspace struct {
	Path    string
	Config  *config.Config
	Session *analysis.Session
	logger  *logging.LoggerCloser
}

func (w *workspace) Close() error {
	err := w.Session.Close()
	if cerr := w.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// loadConfig resolves the configuration for cmd. The --debug and
// --no-color flags override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, used, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		cfg.NoColor = true
	}
	olog.Setup(cfg.LogFile, cfg.Debug)
	if used != "" {
		slog.Debug("Loaded configuration", "path", used)
	}
	return cfg, nil
}

func parseRename(s string) (from, to string, err error) {
	from, to, ok := strings.Cut(s, "=")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || from == "" || to == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRename, s)
	}
	return from, to, nil
}

// openWorkspace loads and analyses file, then applies the --rename flags.
func openWorkspace(cmd *cobra.Command, file string) (*workspace, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	var renames [][2]string
	if cmd.Flags().Lookup("rename") != nil {
		values, _ := cmd.Flags().GetStringArray("rename")
		for _, v := range values {
			from, to, err := parseRename(v)
			if err != nil {
				return nil, err
			}
			renames = append(renames, [2]string{from, to})
		}
	}

	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %v", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("file not found: %s", file)
	}

	logger := logging.NewLogger()
	if cfg.LogFile != "" {
		if lg, err := logging.NewFileLogger(cfg.LogFile); err == nil {
			logger = lg
		} else {
			slog.Warn("Falling back to stderr", "error", err)
		}
	}
	if cfg.Debug {
		logger.SetLevel(charmlog.DebugLevel)
	}

	s, err := analysis.Open(absPath, cfg.Analysis(), logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	frames := s.Drain()
	for _, r := range renames {
		s.Signals.Rename(r[0], r[1])
	}
	frames += s.Drain()
	slog.Debug("Analysis finished", "file", absPath, "frames", frames, "functions", len(s.Functions()))

	return &workspace{Path: absPath, Config: cfg, Session: s, logger: logger}, nil
}

// selectFunctions returns the functions named by refs, or every function in
// address order when refs is empty.
func selectFunctions(s *analysis.Session, refs []string) ([]*analysis.Function, error) {
	if len(refs) == 0 {
		var out []*analysis.Function
		for _, info := range s.Functions() {
			if fn, ok := s.Function(info.Entry); ok {
				out = append(out, fn)
			}
		}
		return out, nil
	}
	out := make([]*analysis.Function, 0, len(refs))
	for _, ref := range refs {
		fn, err := s.Lookup(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
