package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const Version = "0.1.0-dev" // Version information

// Global CLI configuration
var cliConfig struct {
	APIAddr    string // Daemon API base URL
	Token      string // User bearer credential
	AdminToken string // Administrative bearer credential
}

var rootCmd = &cobra.Command{
	Use:     "emberctl",
	Short:   "CLI for the Ember game-server hosting control plane",
	Version: Version,
	Example: `  # List your servers
  emberctl servers --token=$EMBER_TOKEN

  # Create a server on a plan
  emberctl create --plan=plan-small --token=$EMBER_TOKEN

  # Power actions
  emberctl power my-server-id start --token=$EMBER_TOKEN

  # Fleet inventory (operators)
  emberctl nodes --admin-token=$EMBER_ADMIN_TOKEN`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cliConfig.APIAddr, "api",
		"http://127.0.0.1:8090", "Daemon API address")
	rootCmd.PersistentFlags().StringVar(&cliConfig.Token, "token",
		os.Getenv("EMBER_TOKEN"), "User bearer credential (or EMBER_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cliConfig.AdminToken, "admin-token",
		os.Getenv("EMBER_ADMIN_TOKEN"), "Administrative bearer credential (or EMBER_ADMIN_TOKEN)")

	rootCmd.AddCommand(serversCmd, createCmd, powerCmd, deleteCmd,
		plansCmd, nodesCmd, nodeRegisterCmd, planCreateCmd)
}

func userClient() *apiClient {
	return newAPIClient(cliConfig.APIAddr, cliConfig.Token)
}

func adminClient() *apiClient {
	return newAPIClient(cliConfig.APIAddr, cliConfig.AdminToken)
}

// table writes aligned columnar output to stdout.
func table(write func(w *tabwriter.Writer)) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	write(w)
	w.Flush()
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List your game servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := userClient().listServers()
		if err != nil {
			return err
		}
		table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tNODE\tPORT\tRAM_MB\tVERSION")
			for _, sv := range list.Servers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					sv.ID, sv.Name, sv.Status, sv.NodeID, sv.Port, sv.RAMMB, sv.MCVersion)
			}
		})
		return nil
	},
}

var createFlags struct {
	Name      string
	Plan      string
	MCVersion string
	Port      int
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"plan_id": createFlags.Plan}
		if createFlags.Name != "" {
			body["name"] = createFlags.Name
		}
		if createFlags.MCVersion != "" {
			body["mc_version"] = createFlags.MCVersion
		}
		if createFlags.Port != 0 {
			body["port"] = createFlags.Port
		}

		sv, err := userClient().createServer(body)
		if err != nil {
			return err
		}
		fmt.Printf("Server %s (%s) provisioning on node %s, port %d\n",
			sv.ID, sv.Name, sv.NodeID, sv.Port)
		return nil
	},
}

var powerCmd = &cobra.Command{
	Use:   "power <server-id> <start|stop|restart>",
	Short: "Run a power action against a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[1] {
		case "start", "stop", "restart":
		default:
			return fmt.Errorf("unknown power action %q (want start, stop, or restart)", args[1])
		}
		if err := userClient().powerAction(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Server %s: %s accepted\n", args[0], args[1])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <server-id>",
	Short: "Deprovision a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := userClient().deleteServer(args[0]); err != nil {
			return err
		}
		fmt.Printf("Server %s deleted\n", args[0])
		return nil
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the plan catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := userClient().listPlans()
		if err != nil {
			return err
		}
		table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tRAM_MB\tCPU\tDISK_GB\tACTIVE")
			for _, p := range list.Plans {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d\t%d\t%t\n",
					p.ID, p.Name, p.Price, p.RAMMB, p.CPULimit, p.DiskGB, p.Active)
			}
		})
		return nil
	},
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List fleet nodes with capacity ledger figures",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := adminClient().listNodes()
		if err != nil {
			return err
		}
		table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tADDRESS\tSTATUS\tALLOCATED_MB\tTOTAL_MB\tMAX_SERVERS")
			for _, n := range list.Nodes {
				fmt.Fprintf(w, "%s\t%s:%d\t%s\t%d\t%d\t%d\n",
					n.ID, n.Address, n.AgentPort, n.Status,
					n.AllocatedRAMMB, n.TotalRAMMB, n.MaxServers)
			}
		})
		return nil
	},
}

var nodeRegisterFlags struct {
	Address    string
	AgentPort  int
	AgentToken string
	TotalRAMMB int64
	MaxServers int
}

var nodeRegisterCmd = &cobra.Command{
	Use:   "node-register",
	Short: "Register a fleet node with the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := adminClient().registerNode(map[string]any{
			"address":      nodeRegisterFlags.Address,
			"agent_port":   nodeRegisterFlags.AgentPort,
			"agent_token":  nodeRegisterFlags.AgentToken,
			"total_ram_mb": nodeRegisterFlags.TotalRAMMB,
			"max_servers":  nodeRegisterFlags.MaxServers,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Node %s registered at %s:%d\n", node.ID, node.Address, node.AgentPort)
		return nil
	},
}

var planCreateFlags struct {
	Name     string
	Price    float64
	RAMMB    int64
	CPULimit int
	DiskGB   int
	Active   bool
}

var planCreateCmd = &cobra.Command{
	Use:   "plan-create",
	Short: "Add a plan to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := adminClient().createPlan(map[string]any{
			"name":      planCreateFlags.Name,
			"price":     planCreateFlags.Price,
			"ram_mb":    planCreateFlags.RAMMB,
			"cpu_limit": planCreateFlags.CPULimit,
			"disk_gb":   planCreateFlags.DiskGB,
			"active":    planCreateFlags.Active,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Plan %s (%s) created\n", plan.ID, plan.Name)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createFlags.Name, "name", "", "Server name (auto-generated if omitted)")
	createCmd.Flags().StringVar(&createFlags.Plan, "plan", "", "Plan ID to provision against")
	createCmd.Flags().StringVar(&createFlags.MCVersion, "mc-version", "", "Minecraft version")
	createCmd.Flags().IntVar(&createFlags.Port, "port", 0, "Requested game port (0 = allocate)")
	createCmd.MarkFlagRequired("plan")

	nodeRegisterCmd.Flags().StringVar(&nodeRegisterFlags.Address, "address", "", "Agent host address")
	nodeRegisterCmd.Flags().IntVar(&nodeRegisterFlags.AgentPort, "agent-port", 8443, "Agent listen port")
	nodeRegisterCmd.Flags().StringVar(&nodeRegisterFlags.AgentToken, "agent-token", "", "Node-scoped agent credential")
	nodeRegisterCmd.Flags().Int64Var(&nodeRegisterFlags.TotalRAMMB, "total-ram-mb", 0, "Total schedulable RAM in MB")
	nodeRegisterCmd.Flags().IntVar(&nodeRegisterFlags.MaxServers, "max-servers", 20, "Maximum servers on this node")
	nodeRegisterCmd.MarkFlagRequired("address")
	nodeRegisterCmd.MarkFlagRequired("agent-token")
	nodeRegisterCmd.MarkFlagRequired("total-ram-mb")

	planCreateCmd.Flags().StringVar(&planCreateFlags.Name, "name", "", "Plan name")
	planCreateCmd.Flags().Float64Var(&planCreateFlags.Price, "price", 0, "Monthly price")
	planCreateCmd.Flags().Int64Var(&planCreateFlags.RAMMB, "ram-mb", 0, "RAM in MB")
	planCreateCmd.Flags().IntVar(&planCreateFlags.CPULimit, "cpu-limit", 1, "CPU core limit")
	planCreateCmd.Flags().IntVar(&planCreateFlags.DiskGB, "disk-gb", 10, "Disk in GB")
	planCreateCmd.Flags().BoolVar(&planCreateFlags.Active, "active", true, "Plan is purchasable")
	planCreateCmd.MarkFlagRequired("name")
	planCreateCmd.MarkFlagRequired("ram-mb")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
