package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/metorial/auditor/internal/cli"
	"github.com/metorial/auditor/internal/discovery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverURL  string
	consulAddr string
	outputJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auditctl",
	Short: "CLI for the auditor engine",
	Long: `auditctl is a command-line interface for the auditor API.

It manages the host inventory and playbook library, starts playbook runs
and fetches the GOOD/BAD/N/A results they produce.`,
	SilenceUsage: true,
}

func newClient() (*cli.Client, error) {
	if consulAddr == "" {
		return cli.NewClient(serverURL), nil
	}
	registry, err := discovery.New(consulAddr, zap.NewNop())
	if err != nil {
		return nil, err
	}
	addr, err := registry.Discover(discovery.HTTPService)
	if err != nil {
		return nil, err
	}
	return cli.NewClient("http://" + addr), nil
}

// readPassword takes the first line of stdin when fromStdin is set, and
// falls back to AUDITOR_PASSWORD.
func readPassword(fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if pw := os.Getenv("AUDITOR_PASSWORD"); pw != "" {
		return pw, nil
	}
	return "", errors.New("no password: use --password-stdin or set AUDITOR_PASSWORD")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check engine health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		data, err := client.Health()
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, data)
		}
		return cli.FormatHealth(os.Stdout, data)
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the host inventory",
}

var listHostsCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		hosts, err := client.ListHosts()
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, hosts)
		}
		return cli.FormatHostsTable(os.Stdout, hosts)
	},
}

var registerHostCmd = &cobra.Command{
	Use:   "register [name] [username] [ip]",
	Short: "Register a host",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")
		password, err := readPassword(fromStdin)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		host, err := client.RegisterHost(args[0], args[1], password, args[2])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, host)
		}
		fmt.Printf("Registered host %s (#%d)\n", host.Name, host.ID)
		return nil
	},
}

var deleteHostCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeleteHost(id); err != nil {
			return err
		}
		fmt.Printf("Deleted host #%d\n", id)
		return nil
	},
}

var checkHostCmd = &cobra.Command{
	Use:   "check [username] [ip]",
	Short: "Run the default OS checks on a registered host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")
		password, err := readPassword(fromStdin)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.CheckHost(args[0], password, args[1])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, result)
		}
		fmt.Printf("%s: %s (rows: %d, return code: %d)\n", result.HostName, result.Message, result.Rows, result.ReturnCode)
		if result.Error != "" {
			fmt.Printf("Error: %s\n", result.Error)
		}
		return nil
	},
}

var playbooksCmd = &cobra.Command{
	Use:   "playbooks",
	Short: "Manage the playbook library",
}

var listPlaybooksCmd = &cobra.Command{
	Use:   "list",
	Short: "List playbooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		playbooks, err := client.ListPlaybooks()
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, playbooks)
		}
		return cli.FormatPlaybooksTable(os.Stdout, playbooks)
	},
}

var uploadPlaybookCmd = &cobra.Command{
	Use:   "upload [name] [file]",
	Short: "Upload a playbook (.sh, .yml, .yaml or .py)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		client, err := newClient()
		if err != nil {
			return err
		}
		p, err := client.UploadPlaybook(args[0], description, args[1])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, p)
		}
		return cli.FormatPlaybookDetail(os.Stdout, p)
	},
}

var showPlaybookCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a playbook and its sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		p, err := client.GetPlaybook(id)
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, p)
		}
		return cli.FormatPlaybookDetail(os.Stdout, p)
	},
}

var scriptCmd = &cobra.Command{
	Use:   "script [id]",
	Short: "Print playbook content, optionally restricted to sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		sections, _ := cmd.Flags().GetStringSlice("sections")
		client, err := newClient()
		if err != nil {
			return err
		}
		content, err := client.Script(id, sections)
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, content)
		}
		fmt.Print(content.ScriptContent)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a YAML playbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.ValidateYAML(string(data))
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, result)
		}
		return cli.FormatValidation(os.Stdout, result)
	},
}

var deletePlaybookCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a playbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeletePlaybook(id); err != nil {
			return err
		}
		fmt.Printf("Deleted playbook #%d\n", id)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [playbook-id]",
	Short: "Run a playbook on hosts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		playbookID, err := parseID(args[0])
		if err != nil {
			return err
		}
		hostIDs, _ := cmd.Flags().GetInt64Slice("hosts")
		sections, _ := cmd.Flags().GetStringSlice("sections")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")
		wait, _ := cmd.Flags().GetBool("wait")

		password, err := readPassword(fromStdin)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		id, err := client.Execute(playbookID, hostIDs, password, sections)
		if err != nil {
			return err
		}
		if !wait {
			fmt.Println(id)
			return nil
		}

		// Same ceiling as the dashboard: 60 polls, 5 seconds apart.
		exec, err := client.WaitExecution(id, 5*time.Second, 60)
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, exec)
		}
		return cli.FormatExecution(os.Stdout, exec)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		exec, err := client.Execution(args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, exec)
		}
		return cli.FormatExecution(os.Stdout, exec)
	},
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recent executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newClient()
		if err != nil {
			return err
		}
		execs, err := client.Executions(limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, execs)
		}
		return cli.FormatExecutionsTable(os.Stdout, execs)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [execution-id]",
	Short: "Cancel a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		exec, err := client.CancelExecution(args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, exec)
		}
		return cli.FormatExecution(os.Stdout, exec)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results [host-id] [username]",
	Short: "Show the latest audit results of a host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostID, err := parseID(args[0])
		if err != nil {
			return err
		}
		summary, _ := cmd.Flags().GetBool("summary")
		client, err := newClient()
		if err != nil {
			return err
		}

		if summary {
			s, err := client.Summary(hostID, args[1])
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.FormatJSON(os.Stdout, s)
			}
			return cli.FormatSummary(os.Stdout, s)
		}

		set, err := client.Results(hostID, args[1])
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(os.Stdout, set)
		}
		return cli.FormatRowsTable(os.Stdout, set)
	},
}

func init() {
	defaultServerURL := os.Getenv("AUDITOR_URL")
	if defaultServerURL == "" {
		defaultServerURL = "http://localhost:8000"
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL, "Engine URL")
	rootCmd.PersistentFlags().StringVar(&consulAddr, "consul", "", "Consul address used to discover the engine instead of --server")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "Output in JSON format")

	for _, c := range []*cobra.Command{registerHostCmd, checkHostCmd, runCmd} {
		c.Flags().Bool("password-stdin", false, "Read the host password from stdin")
	}

	uploadPlaybookCmd.Flags().StringP("description", "d", "", "Playbook description")
	scriptCmd.Flags().StringSlice("sections", nil, "Section ids to include")

	runCmd.Flags().Int64Slice("hosts", nil, "Host ids to run on")
	runCmd.Flags().StringSlice("sections", nil, "Section ids to run")
	runCmd.Flags().BoolP("wait", "w", false, "Wait for the execution to finish")
	runCmd.MarkFlagRequired("hosts")

	executionsCmd.Flags().IntP("limit", "l", 20, "Number of executions to list")
	resultsCmd.Flags().Bool("summary", false, "Show verdict counts only")

	hostsCmd.AddCommand(listHostsCmd, registerHostCmd, deleteHostCmd, checkHostCmd)
	playbooksCmd.AddCommand(listPlaybooksCmd, uploadPlaybookCmd, showPlaybookCmd, scriptCmd, validateCmd, deletePlaybookCmd)

	rootCmd.AddCommand(healthCmd, hostsCmd, playbooksCmd, runCmd, statusCmd, executionsCmd, cancelCmd, resultsCmd)
}
