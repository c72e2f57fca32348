package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/binshim/internal/binary"
	"github.com/ZebulonRouseFrantzich/binshim/internal/buildinfo"
	"github.com/ZebulonRouseFrantzich/binshim/internal/config"
	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

const (
	outputText  = "text"
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func newShimCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   shimCommand,
		Short: "Manage the shim's cached installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newInstallCmd(a),
		newPlatformsCmd(a),
		newURLCmd(a),
		newDoctorCmd(a),
		newCleanCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

func newInstallCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download, verify and unpack the release binary for this platform",
		Long: `Installs the release binary without running it. Package managers can call
this from a post-install hook so the first real invocation starts immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), quiet)
			if err != nil {
				return err
			}

			p, err := s.manager.Resolve(s.host)
			if err != nil {
				return err
			}

			if err := s.manager.Install(cmd.Context(), p); err != nil {
				return err
			}

			if !quiet {
				fmt.Fprintf(a.stdout, "%s %s installed at %s\n",
					s.build.Name, s.build.Version, s.manager.BinaryPath(p))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report errors")
	return cmd
}

func newPlatformsCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "List the platforms with a prebuilt release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}

			platforms := s.manager.Platforms()
			if output == outputTable {
				return binary.WritePlatformTable(a.stdout, platforms)
			}
			return writeStructured(a.stdout, output, platforms)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	return cmd
}

func newURLCmd(a *app) *cobra.Command {
	var (
		all    bool
		goos   string
		goarch string
	)

	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the release archive URL for this platform",
		Long: `Prints the release archive URL for this host. --goos and --goarch name
another platform in Go naming, for example --goos darwin --goarch arm64.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}

			if all {
				for _, p := range s.manager.Platforms() {
					fmt.Fprintf(a.stdout, "%s\t%s\n", p, s.manager.DownloadInfo(p).URL)
				}
				return nil
			}

			host := s.host
			if goos != "" || goarch != "" {
				if goos == "" || goarch == "" {
					return fmt.Errorf("--goos and --goarch must be set together")
				}
				host, err = platform.NewDetectorFor(goos, goarch).Detect(cmd.Context())
				if err != nil {
					return fmt.Errorf("describe platform: %w", err)
				}
			}

			p, err := s.manager.Resolve(host)
			if err != nil {
				return err
			}

			fmt.Fprintln(a.stdout, s.manager.DownloadInfo(p).URL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Print the URL for every supported platform")
	cmd.Flags().StringVar(&goos, "goos", "", "Resolve for this GOOS instead of the host")
	cmd.Flags().StringVar(&goarch, "goarch", "", "Resolve for this GOARCH instead of the host")
	return cmd
}

// doctorReport is what "shim doctor" prints.
type doctorReport struct {
	Build     buildinfo.Info            `json:"build" yaml:"build"`
	Settings  *config.Settings          `json:"settings" yaml:"settings"`
	Host      hostReport                `json:"host" yaml:"host"`
	Platform  *binary.SupportedPlatform `json:"platform,omitempty" yaml:"platform,omitempty"`
	Problem   string                    `json:"problem,omitempty" yaml:"problem,omitempty"`
	URL       string                    `json:"url,omitempty" yaml:"url,omitempty"`
	Binary    string                    `json:"binary,omitempty" yaml:"binary,omitempty"`
	Installed bool                      `json:"installed" yaml:"installed"`
	Keyring   *keyringReport            `json:"keyring,omitempty" yaml:"keyring,omitempty"`
	Paths     binary.Paths              `json:"paths" yaml:"paths"`
}

type keyringReport struct {
	Path         string   `json:"path" yaml:"path"`
	Fingerprints []string `json:"fingerprints,omitempty" yaml:"fingerprints,omitempty"`
	Error        string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newKeyringReport(path string) *keyringReport {
	if path == "" {
		return nil
	}

	report := &keyringReport{Path: path}
	keyring, err := binary.LoadKeyring(path)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Fingerprints = binary.KeyFingerprints(keyring)
	return report
}

type hostReport struct {
	OSFamily     string `json:"type" yaml:"type"`
	Architecture string `json:"architecture" yaml:"architecture"`
	GOOS         string `json:"goos" yaml:"goos"`
	GOARCH       string `json:"goarch" yaml:"goarch"`
	KernelArch   string `json:"kernel_arch,omitempty" yaml:"kernel_arch,omitempty"`
	Distro       string `json:"distro,omitempty" yaml:"distro,omitempty"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Show build metadata, settings, host detection and cache state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}

			report := doctorReport{
				Build:    s.build,
				Settings: s.settings,
				Host: hostReport{
					OSFamily:     s.host.OSFamily(),
					Architecture: s.host.Architecture(),
					GOOS:         s.host.OS,
					GOARCH:       s.host.ArchRaw,
					KernelArch:   s.host.KernelArch,
				},
				Paths:   s.manager.Paths(),
				Keyring: newKeyringReport(s.settings.GPGKeyring),
			}
			if d := s.host.GetDistro(); d != nil {
				report.Host.Distro = strings.TrimSpace(d.ID + " " + d.Version)
			}

			// An unsupported host is a finding, not a failure
			p, err := s.manager.Resolve(s.host)
			if err != nil {
				report.Problem = err.Error()
			} else {
				report.Platform = &p
				report.URL = s.manager.DownloadInfo(p).URL
				report.Binary = s.manager.BinaryPath(p)
				report.Installed, err = s.manager.IsInstalled(p)
				if err != nil {
					return err
				}
			}

			if output == outputText {
				return writeDoctorText(a.stdout, report)
			}
			return writeStructured(a.stdout, output, report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

func writeDoctorText(w io.Writer, r doctorReport) error {
	lines := [][2]string{
		{"name", r.Build.Name},
		{"version", r.Build.Version},
		{"repository", r.Build.Repository},
		{"commit", r.Build.Commit},
		{"config file", orNone(r.Settings.File)},
		{"verify", r.Settings.Verify},
		{"log level", r.Settings.LogLevel},
		{"proxy", orNone(r.Settings.Proxy)},
		{"host", r.Host.OSFamily + "/" + r.Host.Architecture},
		{"go platform", r.Host.GOOS + "/" + r.Host.GOARCH},
	}
	if r.Host.KernelArch != "" {
		lines = append(lines, [2]string{"kernel arch", r.Host.KernelArch})
	}
	if r.Host.Distro != "" {
		lines = append(lines, [2]string{"distro", r.Host.Distro})
	}
	if r.Platform != nil {
		target := r.Platform.ReleaseTarget
		if r.Platform.Emulated {
			target += " (emulated)"
		}
		lines = append(lines,
			[2]string{"target", target},
			[2]string{"url", r.URL},
			[2]string{"binary", r.Binary},
			[2]string{"installed", fmt.Sprint(r.Installed)},
		)
	} else {
		lines = append(lines, [2]string{"problem", r.Problem})
	}
	if r.Keyring != nil {
		lines = append(lines, [2]string{"keyring", r.Keyring.Path})
		if r.Keyring.Error != "" {
			lines = append(lines, [2]string{"keyring err", r.Keyring.Error})
		}
		for _, fp := range r.Keyring.Fingerprints {
			lines = append(lines, [2]string{"key", fp})
		}
	}
	lines = append(lines,
		[2]string{"home", r.Paths.Home},
		[2]string{"cache", r.Paths.Cache},
	)

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-12s %s\n", l[0]+":", l[1]); err != nil {
			return err
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove cached downloads and installed binaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			if err := s.manager.Clean(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed cached files under %s\n", s.manager.Paths().Home)
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the release metadata compiled into the shim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			if output == outputText {
				fmt.Fprintf(a.stdout, "%s %s (shim commit: %s)\n", info.Name, info.Version, info.Commit)
				return nil
			}
			return writeStructured(a.stdout, output, info)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
